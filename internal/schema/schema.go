package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Canonical column names. Every dataset carries these, in this order.
const (
	ColSessionID         = "session_id"
	ColStudyID           = "study_id"
	ColParticipantID     = "participant_id"
	ColStartTime         = "start_time"
	ColEndTime           = "end_time"
	ColDurationSeconds   = "duration_seconds"
	ColStatus            = "status"
	ColTotalItems        = "total_items"
	ColAdministeredItems = "administered_items"
	ColAbility           = "ability"
	ColStdError          = "std_error"
	ColStudyType         = "study_type"
	ColLanguage          = "language"
	ColDevice            = "device"
	ColBrowser           = "browser"
	ColAge               = "age"
	ColGender            = "gender"
	ColEducation         = "education"
	ColParticipantCode   = "participant_code"
	ColDemographicsExtra = "demographics_extra"
)

// Custom-flow column names, present only when StudyConfig.CustomFlow is set.
const (
	ColPagesCompleted = "pages_completed"
	ColPagesTotal     = "pages_total"
	ColPageTimings    = "page_timings"
)

// itemPrefix disambiguates item ids that collide with a reserved column name.
const itemPrefix = "item_"

// Kind is the value type stored in a column.
type Kind int

const (
	KindString Kind = iota
	KindTime
	KindInt
	KindFloat
	KindStatus
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStatus:
		return "status"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Group says which part of a record a column belongs to.
type Group int

const (
	GroupCanonical Group = iota
	GroupDemographic
	GroupResponse
	GroupFlow
)

func (g Group) String() string {
	switch g {
	case GroupCanonical:
		return "canonical"
	case GroupDemographic:
		return "demographic"
	case GroupResponse:
		return "response"
	case GroupFlow:
		return "flow"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// Column is one named, typed slot of a record.
type Column struct {
	Name  string
	Kind  Kind
	Group Group
}

// Derived reports whether the column is computed from other columns and
// cannot be written directly.
func (c Column) Derived() bool {
	return c.Name == ColDurationSeconds
}

var canonicalColumns = []Column{
	{ColSessionID, KindString, GroupCanonical},
	{ColStudyID, KindString, GroupCanonical},
	{ColParticipantID, KindString, GroupCanonical},
	{ColStartTime, KindTime, GroupCanonical},
	{ColEndTime, KindTime, GroupCanonical},
	{ColDurationSeconds, KindFloat, GroupCanonical},
	{ColStatus, KindStatus, GroupCanonical},
	{ColTotalItems, KindInt, GroupCanonical},
	{ColAdministeredItems, KindInt, GroupCanonical},
	{ColAbility, KindFloat, GroupCanonical},
	{ColStdError, KindFloat, GroupCanonical},
	{ColStudyType, KindString, GroupCanonical},
	{ColLanguage, KindString, GroupCanonical},
	{ColDevice, KindString, GroupCanonical},
	{ColBrowser, KindString, GroupCanonical},
	{ColAge, KindString, GroupDemographic},
	{ColGender, KindString, GroupDemographic},
	{ColEducation, KindString, GroupDemographic},
	{ColParticipantCode, KindString, GroupDemographic},
	{ColDemographicsExtra, KindBlob, GroupDemographic},
}

var flowColumns = []Column{
	{ColPagesCompleted, KindInt, GroupFlow},
	{ColPagesTotal, KindInt, GroupFlow},
	{ColPageTimings, KindBlob, GroupFlow},
}

// CanonicalDemographics lists the demographic keys stored in dedicated
// columns. Any other demographic key goes to demographics_extra.
var CanonicalDemographics = []string{ColAge, ColGender, ColEducation, ColParticipantCode}

// IsCanonicalDemographic reports whether key has a dedicated column.
func IsCanonicalDemographic(key string) bool {
	return slices.Contains(CanonicalDemographics, key)
}

// IsReserved reports whether name is a canonical or custom-flow column.
func IsReserved(name string) bool {
	for _, c := range canonicalColumns {
		if c.Name == name {
			return true
		}
	}
	for _, c := range flowColumns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// StudyConfig is the part of a study's configuration that shapes its dataset.
type StudyConfig struct {
	Name              string   `yaml:"name" json:"name"`
	StudyType         string   `yaml:"study_type,omitempty" json:"study_type,omitempty"`
	Language          string   `yaml:"language,omitempty" json:"language,omitempty"`
	DemographicFields []string `yaml:"demographics,omitempty" json:"demographics,omitempty"`
	CustomFlow        bool     `yaml:"custom_flow,omitempty" json:"custom_flow,omitempty"`
}

// ItemBank describes the external item catalogue. When IDs is empty, Count
// ids of the form item_1..item_N are generated.
type ItemBank struct {
	Count int      `yaml:"count,omitempty" json:"count,omitempty"`
	IDs   []string `yaml:"ids,omitempty" json:"ids,omitempty"`
}

// Schema is the column layout of one study dataset.
type Schema struct {
	// Config and Bank are the normalized inputs Build was called with.
	Config StudyConfig
	Bank   ItemBank

	Columns []Column

	// ItemIDs are the response column names in bank order.
	ItemIDs []string

	// ExtraDemographics are declared demographic fields without a
	// dedicated column.
	ExtraDemographics []string

	CustomFlow bool
}

// Build derives the schema for a study. It is pure and deterministic.
//
// Empty and duplicate item ids are dropped (first occurrence wins); an id
// equal to a reserved column name is prefixed with "item_".
func Build(cfg StudyConfig, bank ItemBank) Schema {
	cfg = normalizeConfig(cfg)
	bank = normalizeBank(bank)

	s := Schema{
		Config:     cfg,
		Bank:       bank,
		CustomFlow: cfg.CustomFlow,
	}

	s.Columns = append(s.Columns, canonicalColumns...)

	for _, id := range itemIDs(bank) {
		s.ItemIDs = append(s.ItemIDs, id)
		s.Columns = append(s.Columns, Column{Name: id, Kind: KindFloat, Group: GroupResponse})
	}

	seen := map[string]bool{}
	for _, f := range cfg.DemographicFields {
		if IsCanonicalDemographic(f) || seen[f] {
			continue
		}
		seen[f] = true
		s.ExtraDemographics = append(s.ExtraDemographics, f)
	}

	if cfg.CustomFlow {
		s.Columns = append(s.Columns, flowColumns...)
	}

	return s
}

func itemIDs(bank ItemBank) []string {
	raw := bank.IDs
	if len(raw) == 0 {
		raw = make([]string, bank.Count)
		for i := range raw {
			raw[i] = fmt.Sprintf("item_%d", i+1)
		}
	}

	var ids []string
	seen := map[string]bool{}
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if IsReserved(id) {
			id = itemPrefix + id
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func normalizeConfig(cfg StudyConfig) StudyConfig {
	var fields []string
	for _, f := range cfg.DemographicFields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	cfg.DemographicFields = fields
	return cfg
}

func normalizeBank(bank ItemBank) ItemBank {
	if bank.Count < 0 {
		bank.Count = 0
	}
	if len(bank.IDs) == 0 {
		bank.IDs = nil
	} else {
		bank.IDs = slices.Clone(bank.IDs)
	}
	return bank
}

// Column returns the column with the given name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Names returns the ordered column names.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// HasItem reports whether id is a response column.
func (s Schema) HasItem(id string) bool {
	return slices.Contains(s.ItemIDs, id)
}

// HasExtraDemographic reports whether key is a declared non-canonical
// demographic field.
func (s Schema) HasExtraDemographic(key string) bool {
	return slices.Contains(s.ExtraDemographics, key)
}

// ItemCount is the number of response columns.
func (s Schema) ItemCount() int {
	return len(s.ItemIDs)
}
