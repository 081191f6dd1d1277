package snapshot

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/sessionstore/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial snapshot layout
const currentSchemaVersion = 1

const headerKey = "header"

// WriteSQLite atomically replaces path with the binary snapshot of d.
func WriteSQLite(path string, d record.Dataset) error {
	if _, err := d.Index(); err != nil {
		return fmt.Errorf("write sqlite snapshot: %w", err)
	}
	err := replaceAtomic(path, 0o644, func(tempPath string) error {
		return writeDB(tempPath, d)
	})
	if err != nil {
		return fmt.Errorf("write sqlite snapshot: %w", err)
	}
	return nil
}

func writeDB(path string, d record.Dataset) (err error) {
	db, err := openWritable(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close database: %w", closeErr)
		}
	}()

	meta, err := encodeHeader(d)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, headerKey, meta); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sessions
		(seq, session_id, study_id, participant_id, start_time, end_time, duration_seconds,
		 status, total_items, administered_items, ability, std_error,
		 study_type, language, device, browser,
		 age, gender, education, participant_code, demographics_extra,
		 responses, pages_completed, pages_total, page_timings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range d.Records {
		args, err := rowArgs(i+1, r)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func rowArgs(seq int, r record.Record) ([]any, error) {
	extra, err := record.EncodeStrings(r.Extra)
	if err != nil {
		return nil, err
	}
	responses, err := record.EncodeFloats(r.Responses)
	if err != nil {
		return nil, err
	}

	var duration sql.NullFloat64
	if d, ok := r.DurationSeconds(); ok {
		duration = sql.NullFloat64{Float64: d, Valid: true}
	}

	var pagesCompleted, pagesTotal sql.NullInt64
	var timings sql.NullString
	if r.Flow != nil {
		pagesCompleted = sql.NullInt64{Int64: int64(r.Flow.PagesCompleted), Valid: true}
		pagesTotal = sql.NullInt64{Int64: int64(r.Flow.PagesTotal), Valid: true}
		enc, err := record.EncodeFloats(r.Flow.PageTimings)
		if err != nil {
			return nil, err
		}
		timings = sql.NullString{String: enc, Valid: true}
	}

	return []any{
		seq, r.SessionID, r.StudyID, r.ParticipantID,
		record.FormatTime(r.StartTime), record.FormatTime(r.EndTime), duration,
		string(r.Status), r.TotalItems, r.AdministeredItems,
		nullFloat(r.Ability), nullFloat(r.StdError),
		r.StudyType, r.Language, r.Device, r.Browser,
		r.Age, r.Gender, r.Education, r.ParticipantCode, extra,
		responses, pagesCompleted, pagesTotal, timings,
	}, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// ReadSQLite loads a binary snapshot from disk. The database is opened
// read-only and is never created.
func ReadSQLite(path string) (record.Dataset, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return record.Dataset{}, fmt.Errorf("read sqlite snapshot: %w", err)
	}
	defer db.Close()

	d, err := readDB(db)
	if err != nil {
		return record.Dataset{}, fmt.Errorf("read sqlite snapshot %s: %w", path, err)
	}
	return d, nil
}

func readDB(db *sql.DB) (record.Dataset, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return record.Dataset{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != currentSchemaVersion {
		return record.Dataset{}, fmt.Errorf("%w: unsupported schema version %d", ErrCorrupt, version)
	}

	var meta string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = ?`, headerKey).Scan(&meta); err != nil {
		return record.Dataset{}, fmt.Errorf("%w: meta: %v", ErrCorrupt, err)
	}
	d, err := decodeHeader(meta)
	if err != nil {
		return record.Dataset{}, err
	}

	rows, err := db.Query(`
		SELECT session_id, study_id, participant_id, start_time, end_time,
		       status, total_items, administered_items, ability, std_error,
		       study_type, language, device, browser,
		       age, gender, education, participant_code, demographics_extra,
		       responses, pages_completed, pages_total, page_timings
		FROM sessions
		ORDER BY seq ASC
	`)
	if err != nil {
		return record.Dataset{}, fmt.Errorf("%w: query sessions: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows, d.Schema.CustomFlow)
		if err != nil {
			return record.Dataset{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		d.Records = append(d.Records, r)
	}
	if err := rows.Err(); err != nil {
		return record.Dataset{}, fmt.Errorf("%w: iterate sessions: %v", ErrCorrupt, err)
	}

	if _, err := d.Index(); err != nil {
		return record.Dataset{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return d, nil
}

func scanRecord(rows *sql.Rows, customFlow bool) (record.Record, error) {
	var (
		r                     record.Record
		start, end, status    string
		ability, stdErr       sql.NullFloat64
		extra, responses      string
		pagesDone, pagesTotal sql.NullInt64
		timings               sql.NullString
	)
	err := rows.Scan(
		&r.SessionID, &r.StudyID, &r.ParticipantID, &start, &end,
		&status, &r.TotalItems, &r.AdministeredItems, &ability, &stdErr,
		&r.StudyType, &r.Language, &r.Device, &r.Browser,
		&r.Age, &r.Gender, &r.Education, &r.ParticipantCode, &extra,
		&responses, &pagesDone, &pagesTotal, &timings,
	)
	if err != nil {
		return record.Record{}, fmt.Errorf("scan session: %w", err)
	}

	if r.StartTime, err = record.ParseTime(start); err != nil {
		return record.Record{}, fmt.Errorf("start_time: %w", err)
	}
	if r.EndTime, err = record.ParseTime(end); err != nil {
		return record.Record{}, fmt.Errorf("end_time: %w", err)
	}
	r.Status = record.Status(status)
	if ability.Valid {
		v := ability.Float64
		r.Ability = &v
	}
	if stdErr.Valid {
		v := stdErr.Float64
		r.StdError = &v
	}
	if r.Extra, err = record.DecodeStrings(extra); err != nil {
		return record.Record{}, err
	}
	if r.Responses, err = record.DecodeFloats(responses); err != nil {
		return record.Record{}, err
	}

	if customFlow {
		r.Flow = &record.Flow{
			PagesCompleted: int(pagesDone.Int64),
			PagesTotal:     int(pagesTotal.Int64),
		}
		if r.Flow.PageTimings, err = record.DecodeFloats(timings.String); err != nil {
			return record.Record{}, err
		}
	}
	return r, nil
}

// openWritable creates a database at path with the snapshot schema applied.
func openWritable(path string) (*sql.DB, error) {
	dsn, err := snapshotDSN(path, "rwc")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A snapshot is written by exactly one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// openReadOnly opens an existing snapshot without creating or modifying it.
func openReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	dsn, err := snapshotDSN(path, "ro")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return db, nil
}

// snapshotDSN builds a SQLite URI for path opened with the given mode
// (ro, rw or rwc). The path is percent-encoded so that '#', '?' and '%' in
// file names stay part of it.
func snapshotDSN(path, mode string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: "mode=" + mode}
	return u.String(), nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the snapshot tables and stamps the schema version.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// pragmaValue reads a pragma as text. Used for testing.
func pragmaValue(db *sql.DB, name string) (string, error) {
	var value string
	if err := db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
