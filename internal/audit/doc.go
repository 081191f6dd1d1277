// Package audit records data-management events.
//
// A Logger keeps an in-process, append-only list of entries. Events on the
// audit allow-list are always recorded and echoed to the audit *slog.Logger;
// any other event is recorded only when an external Sink is attached.
//
// Logging never fails the caller. Errors and panics raised while recording
// or forwarding an entry are swallowed and counted in Dropped.
package audit
