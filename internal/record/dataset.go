package record

import (
	"fmt"
	"time"

	"github.com/roach88/sessionstore/internal/schema"
)

// Meta describes a dataset as a whole.
type Meta struct {
	StudyKey   string
	CreatedAt  time.Time
	ConfigName string
	ItemCount  int
}

// Dataset is an ordered, append-only collection of records.
type Dataset struct {
	Meta    Meta
	Schema  schema.Schema
	Records []Record
}

// NewDataset returns an empty dataset for the given schema.
func NewDataset(key string, createdAt time.Time, s schema.Schema) Dataset {
	return Dataset{
		Meta: Meta{
			StudyKey:   key,
			CreatedAt:  normalizeTime(createdAt),
			ConfigName: s.Config.Name,
			ItemCount:  s.ItemCount(),
		},
		Schema: s,
	}
}

// Len is the number of records.
func (d Dataset) Len() int {
	return len(d.Records)
}

// Clone returns a deep copy of d.
func (d Dataset) Clone() Dataset {
	c := d
	if d.Records != nil {
		c.Records = make([]Record, len(d.Records))
		for i, r := range d.Records {
			c.Records[i] = r.Clone()
		}
	}
	return c
}

// Index maps session id to position. It fails on duplicate or invalid
// records.
func (d Dataset) Index() (map[string]int, error) {
	idx := make(map[string]int, len(d.Records))
	for i, r := range d.Records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := idx[r.SessionID]; dup {
			return nil, fmt.Errorf("%w: duplicate session id %q", ErrInvariant, r.SessionID)
		}
		idx[r.SessionID] = i
	}
	return idx, nil
}

// Counts summarizes completion state and stored responses.
func (d Dataset) Counts() (completed, incomplete, responses int) {
	for _, r := range d.Records {
		if r.Completed() {
			completed++
		} else {
			incomplete++
		}
		responses += r.ResponseCount()
	}
	return completed, incomplete, responses
}
