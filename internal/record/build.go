package record

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/spf13/cast"

	"github.com/roach88/sessionstore/internal/schema"
)

// SessionData carries the canonical per-session inputs. Zero values mean
// "not provided".
type SessionData struct {
	SessionID     string
	StudyID       string
	ParticipantID string

	StartTime time.Time
	EndTime   time.Time
	Status    Status

	TotalItems        int
	AdministeredItems int

	Ability  *float64
	StdError *float64

	StudyType string
	Language  string
	Device    string
	Browser   string
}

// CustomData is custom-flow telemetry for one session.
type CustomData struct {
	PagesCompleted int
	PagesTotal     int
	PageTimings    map[string]float64
}

// Input is everything needed to build a new record.
type Input struct {
	Session SessionData

	// Responses map positionally onto the schema's item ids. NaN marks an
	// item that was not administered; positions past the last item are
	// ignored.
	Responses []float64

	// Demographics keys matching a canonical demographic column are stored
	// there; all other keys go to the record's Extra map.
	Demographics map[string]any

	Custom *CustomData
}

// Build produces a filled record from raw inputs. It never fails: absent
// inputs leave fields unset and inconsistent inputs are clamped so the
// result always satisfies Validate.
//
// newID is called only when the input carries no session id.
func Build(s schema.Schema, in Input, now time.Time, newID func() string) Record {
	sd := in.Session

	r := Record{
		SessionID:         normalizeString(sd.SessionID),
		StudyID:           normalizeString(sd.StudyID),
		ParticipantID:     normalizeString(sd.ParticipantID),
		StartTime:         normalizeTime(sd.StartTime),
		EndTime:           normalizeTime(sd.EndTime),
		Status:            sd.Status,
		TotalItems:        sd.TotalItems,
		AdministeredItems: sd.AdministeredItems,
		Ability:           finitePtr(sd.Ability),
		StdError:          finitePtr(sd.StdError),
		StudyType:         normalizeString(sd.StudyType),
		Language:          normalizeString(sd.Language),
		Device:            normalizeString(sd.Device),
		Browser:           normalizeString(sd.Browser),
	}

	if r.SessionID == "" && newID != nil {
		r.SessionID = newID()
	}
	if r.StudyType == "" {
		r.StudyType = s.Config.StudyType
	}
	if r.Language == "" {
		r.Language = s.Config.Language
	}
	if r.StartTime.IsZero() {
		r.StartTime = normalizeTime(now)
	}
	if !r.EndTime.IsZero() && r.EndTime.Before(r.StartTime) {
		r.EndTime = time.Time{}
	}
	if !r.Status.Valid() {
		r.Status = StatusInProgress
	}

	r.Responses = mapResponses(s, in.Responses)

	if r.TotalItems <= 0 {
		r.TotalItems = s.ItemCount()
	}
	if r.AdministeredItems <= 0 {
		r.AdministeredItems = len(r.Responses)
	}
	if r.AdministeredItems > r.TotalItems {
		r.AdministeredItems = r.TotalItems
	}

	applyDemographics(&r, in.Demographics)

	if s.CustomFlow {
		r.Flow = buildFlow(in.Custom)
	}

	return r
}

func finitePtr(v *float64) *float64 {
	if v == nil || !finite(*v) {
		return nil
	}
	c := *v
	return &c
}

func mapResponses(s schema.Schema, responses []float64) map[string]float64 {
	var out map[string]float64
	for i, v := range responses {
		if i >= len(s.ItemIDs) {
			break
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if out == nil {
			out = make(map[string]float64)
		}
		out[s.ItemIDs[i]] = v
	}
	return out
}

func applyDemographics(r *Record, demographics map[string]any) {
	keys := make([]string, 0, len(demographics))
	for k := range demographics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := demographics[k]
		if v == nil || k == "" {
			continue
		}
		val := normalizeString(stringify(v))
		switch k {
		case schema.ColAge:
			r.Age = val
		case schema.ColGender:
			r.Gender = val
		case schema.ColEducation:
			r.Education = val
		case schema.ColParticipantCode:
			r.ParticipantCode = val
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[normalizeString(k)] = val
		}
	}
}

func buildFlow(c *CustomData) *Flow {
	f := &Flow{}
	if c == nil {
		return f
	}
	f.PagesCompleted = max(c.PagesCompleted, 0)
	f.PagesTotal = max(c.PagesTotal, 0)
	for page, secs := range c.PageTimings {
		if !finite(secs) {
			continue
		}
		if f.PageTimings == nil {
			f.PageTimings = make(map[string]float64)
		}
		f.PageTimings[normalizeString(page)] = secs
	}
	return f
}

// stringify renders a demographic value. Values cast cannot handle fall back
// to their fmt representation.
func stringify(v any) string {
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
