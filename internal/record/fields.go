package record

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/spf13/cast"

	"github.com/roach88/sessionstore/internal/schema"
)

// Fields is an update payload keyed by column name.
//
// Keys are canonical column names, item ids (response values; nil unsets),
// declared extra demographic fields, or custom-flow columns when the schema
// declares a custom flow. demographics_extra accepts a map that is merged
// into the record's Extra map.
type Fields map[string]any

// ErrField is returned for payloads that cannot be applied.
var ErrField = errors.New("invalid field")

// Apply returns a copy of r with f applied. On error the original record is
// untouched and the copy must be discarded.
func Apply(s schema.Schema, r Record, f Fields) (Record, error) {
	out := r.Clone()

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := out.set(s, k, f[k]); err != nil {
			return r, fmt.Errorf("field %q: %w", k, err)
		}
	}
	if err := out.Validate(); err != nil {
		return r, err
	}
	return out, nil
}

func (r *Record) set(s schema.Schema, key string, v any) error {
	switch key {
	case schema.ColSessionID:
		return fmt.Errorf("%w: session id is immutable", ErrField)
	case schema.ColDurationSeconds:
		return fmt.Errorf("%w: duration is derived from start and end time", ErrField)
	case schema.ColStudyID:
		return setString(&r.StudyID, v)
	case schema.ColParticipantID:
		return setString(&r.ParticipantID, v)
	case schema.ColStudyType:
		return setString(&r.StudyType, v)
	case schema.ColLanguage:
		return setString(&r.Language, v)
	case schema.ColDevice:
		return setString(&r.Device, v)
	case schema.ColBrowser:
		return setString(&r.Browser, v)
	case schema.ColAge:
		return setString(&r.Age, v)
	case schema.ColGender:
		return setString(&r.Gender, v)
	case schema.ColEducation:
		return setString(&r.Education, v)
	case schema.ColParticipantCode:
		return setString(&r.ParticipantCode, v)
	case schema.ColStartTime:
		return setTime(&r.StartTime, v)
	case schema.ColEndTime:
		return setTime(&r.EndTime, v)
	case schema.ColStatus:
		return r.setStatus(v)
	case schema.ColTotalItems:
		return setInt(&r.TotalItems, v)
	case schema.ColAdministeredItems:
		return setInt(&r.AdministeredItems, v)
	case schema.ColAbility:
		return setOptionalFloat(&r.Ability, v)
	case schema.ColStdError:
		return setOptionalFloat(&r.StdError, v)
	case schema.ColDemographicsExtra:
		return r.mergeExtra(v)
	}

	if s.HasItem(key) {
		return r.setResponse(key, v)
	}
	if s.HasExtraDemographic(key) {
		if v == nil {
			delete(r.Extra, key)
			return nil
		}
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[key] = normalizeString(stringify(v))
		return nil
	}
	if s.CustomFlow {
		switch key {
		case schema.ColPagesCompleted:
			return setInt(&r.flow().PagesCompleted, v)
		case schema.ColPagesTotal:
			return setInt(&r.flow().PagesTotal, v)
		case schema.ColPageTimings:
			return r.setPageTimings(v)
		}
	}
	return fmt.Errorf("%w: unknown column", ErrField)
}

func (r *Record) flow() *Flow {
	if r.Flow == nil {
		r.Flow = &Flow{}
	}
	return r.Flow
}

func (r *Record) setStatus(v any) error {
	var next Status
	switch val := v.(type) {
	case Status:
		next = val
	case string:
		next = Status(val)
	default:
		return fmt.Errorf("%w: status must be a string, got %T", ErrField, v)
	}
	if err := transition(r.Status, next); err != nil {
		return err
	}
	r.Status = next
	return nil
}

func (r *Record) setResponse(id string, v any) error {
	if v == nil {
		delete(r.Responses, id)
		if len(r.Responses) == 0 {
			r.Responses = nil
		}
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrField, err)
	}
	if math.IsNaN(f) {
		delete(r.Responses, id)
		if len(r.Responses) == 0 {
			r.Responses = nil
		}
		return nil
	}
	if r.Responses == nil {
		r.Responses = make(map[string]float64)
	}
	r.Responses[id] = f
	return nil
}

func (r *Record) mergeExtra(v any) error {
	m, err := cast.ToStringMapStringE(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrField, err)
	}
	for k, val := range m {
		if k == "" {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[normalizeString(k)] = normalizeString(val)
	}
	return nil
}

func (r *Record) setPageTimings(v any) error {
	if v == nil {
		r.flow().PageTimings = nil
		return nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrField, err)
	}
	timings := make(map[string]float64, len(m))
	for page, raw := range m {
		secs, err := cast.ToFloat64E(raw)
		if err != nil {
			return fmt.Errorf("%w: page %q: %v", ErrField, page, err)
		}
		timings[normalizeString(page)] = secs
	}
	if len(timings) == 0 {
		timings = nil
	}
	r.flow().PageTimings = timings
	return nil
}

func setString(dst *string, v any) error {
	if v == nil {
		*dst = ""
		return nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrField, err)
	}
	*dst = normalizeString(s)
	return nil
}

// setInt rejects fractional numbers instead of truncating them.
func setInt(dst *int, v any) error {
	if f, err := cast.ToFloat64E(v); err == nil && !integral(f) {
		return fmt.Errorf("%w: %v is not an integer", ErrField, v)
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrField, err)
	}
	*dst = n
	return nil
}

func integral(f float64) bool {
	return finite(f) && f == math.Trunc(f)
}

func setOptionalFloat(dst **float64, v any) error {
	if v == nil {
		*dst = nil
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrField, err)
	}
	*dst = &f
	return nil
}

func setTime(dst *time.Time, v any) error {
	if v == nil {
		*dst = time.Time{}
		return nil
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrField, err)
	}
	*dst = normalizeTime(t)
	return nil
}
