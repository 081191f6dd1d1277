package record

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/sessionstore/internal/schema"
)

// TimeLayout is the text form of timestamps in snapshots.
const TimeLayout = time.RFC3339Nano

// FormatTime renders t for a snapshot. The zero time renders as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return normalizeTime(t), nil
}

// FormatFloat renders a float with the shortest text that parses back to
// the same value.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatFloat(*v)
}

// Cell renders one column of r as text. Unset values render as "".
func (r Record) Cell(col schema.Column) (string, error) {
	switch col.Name {
	case schema.ColSessionID:
		return r.SessionID, nil
	case schema.ColStudyID:
		return r.StudyID, nil
	case schema.ColParticipantID:
		return r.ParticipantID, nil
	case schema.ColStartTime:
		return FormatTime(r.StartTime), nil
	case schema.ColEndTime:
		return FormatTime(r.EndTime), nil
	case schema.ColDurationSeconds:
		if d, ok := r.DurationSeconds(); ok {
			return FormatFloat(d), nil
		}
		return "", nil
	case schema.ColStatus:
		return string(r.Status), nil
	case schema.ColTotalItems:
		return strconv.Itoa(r.TotalItems), nil
	case schema.ColAdministeredItems:
		return strconv.Itoa(r.AdministeredItems), nil
	case schema.ColAbility:
		return formatOptionalFloat(r.Ability), nil
	case schema.ColStdError:
		return formatOptionalFloat(r.StdError), nil
	case schema.ColStudyType:
		return r.StudyType, nil
	case schema.ColLanguage:
		return r.Language, nil
	case schema.ColDevice:
		return r.Device, nil
	case schema.ColBrowser:
		return r.Browser, nil
	case schema.ColAge:
		return r.Age, nil
	case schema.ColGender:
		return r.Gender, nil
	case schema.ColEducation:
		return r.Education, nil
	case schema.ColParticipantCode:
		return r.ParticipantCode, nil
	case schema.ColDemographicsExtra:
		return EncodeStrings(r.Extra)
	}

	switch col.Group {
	case schema.GroupResponse:
		if v, ok := r.Responses[col.Name]; ok {
			return FormatFloat(v), nil
		}
		return "", nil
	case schema.GroupFlow:
		if r.Flow == nil {
			return "", nil
		}
		switch col.Name {
		case schema.ColPagesCompleted:
			return strconv.Itoa(r.Flow.PagesCompleted), nil
		case schema.ColPagesTotal:
			return strconv.Itoa(r.Flow.PagesTotal), nil
		case schema.ColPageTimings:
			return EncodeFloats(r.Flow.PageTimings)
		}
	}
	return "", fmt.Errorf("%w: no cell for column %q", ErrField, col.Name)
}

// SetCell parses raw into column col of r. It is the inverse of Cell and is
// used by snapshot readers; derived columns are ignored.
func (r *Record) SetCell(col schema.Column, raw string) error {
	var err error
	switch col.Name {
	case schema.ColSessionID:
		r.SessionID = raw
	case schema.ColStudyID:
		r.StudyID = raw
	case schema.ColParticipantID:
		r.ParticipantID = raw
	case schema.ColStartTime:
		r.StartTime, err = ParseTime(raw)
	case schema.ColEndTime:
		r.EndTime, err = ParseTime(raw)
	case schema.ColDurationSeconds:
	case schema.ColStatus:
		r.Status = Status(raw)
	case schema.ColTotalItems:
		r.TotalItems, err = parseInt(raw)
	case schema.ColAdministeredItems:
		r.AdministeredItems, err = parseInt(raw)
	case schema.ColAbility:
		r.Ability, err = parseOptionalFloat(raw)
	case schema.ColStdError:
		r.StdError, err = parseOptionalFloat(raw)
	case schema.ColStudyType:
		r.StudyType = raw
	case schema.ColLanguage:
		r.Language = raw
	case schema.ColDevice:
		r.Device = raw
	case schema.ColBrowser:
		r.Browser = raw
	case schema.ColAge:
		r.Age = raw
	case schema.ColGender:
		r.Gender = raw
	case schema.ColEducation:
		r.Education = raw
	case schema.ColParticipantCode:
		r.ParticipantCode = raw
	case schema.ColDemographicsExtra:
		r.Extra, err = DecodeStrings(raw)
	default:
		err = r.setGroupCell(col, raw)
	}
	if err != nil {
		return fmt.Errorf("column %q: %w", col.Name, err)
	}
	return nil
}

func (r *Record) setGroupCell(col schema.Column, raw string) error {
	switch col.Group {
	case schema.GroupResponse:
		v, err := parseOptionalFloat(raw)
		if err != nil || v == nil {
			return err
		}
		if r.Responses == nil {
			r.Responses = make(map[string]float64)
		}
		r.Responses[col.Name] = *v
		return nil
	case schema.GroupFlow:
		var err error
		switch col.Name {
		case schema.ColPagesCompleted:
			r.flow().PagesCompleted, err = parseInt(raw)
		case schema.ColPagesTotal:
			r.flow().PagesTotal, err = parseInt(raw)
		case schema.ColPageTimings:
			r.flow().PageTimings, err = DecodeFloats(raw)
		}
		return err
	}
	return fmt.Errorf("%w: unknown column", ErrField)
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseOptionalFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
