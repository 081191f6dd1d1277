package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/schema"
)

// formatVersion is bumped on incompatible snapshot layout changes.
const formatVersion = 1

// ErrCorrupt is returned when a snapshot exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt snapshot")

// header is the dataset metadata persisted with every snapshot. It carries
// the schema inputs, not the columns; readers rebuild the schema.
type header struct {
	Version    int                `json:"version"`
	StudyKey   string             `json:"study_key"`
	CreatedAt  string             `json:"created_at"`
	ConfigName string             `json:"config_name"`
	ItemCount  int                `json:"item_count"`
	Config     schema.StudyConfig `json:"config"`
	Bank       schema.ItemBank    `json:"item_bank"`
}

func encodeHeader(d record.Dataset) (string, error) {
	h := header{
		Version:    formatVersion,
		StudyKey:   d.Meta.StudyKey,
		CreatedAt:  record.FormatTime(d.Meta.CreatedAt),
		ConfigName: d.Meta.ConfigName,
		ItemCount:  d.Meta.ItemCount,
		Config:     d.Schema.Config,
		Bank:       d.Schema.Bank,
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize header: %w", err)
	}
	return string(out), nil
}

func decodeHeader(s string) (record.Dataset, error) {
	var h header
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return record.Dataset{}, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Version != formatVersion {
		return record.Dataset{}, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, h.Version)
	}
	createdAt, err := record.ParseTime(h.CreatedAt)
	if err != nil {
		return record.Dataset{}, fmt.Errorf("%w: created_at: %v", ErrCorrupt, err)
	}
	return record.Dataset{
		Meta: record.Meta{
			StudyKey:   h.StudyKey,
			CreatedAt:  createdAt,
			ConfigName: h.ConfigName,
			ItemCount:  h.ItemCount,
		},
		Schema: schema.Build(h.Config, h.Bank),
	}, nil
}
