package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/schema"
)

var testCreated = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

// testDataset returns a two-row dataset: one completed session with every
// canonical field set and one in-progress session with most fields unset.
func testDataset(t *testing.T) record.Dataset {
	t.Helper()

	s := schema.Build(schema.StudyConfig{
		Name:              "hilfo",
		StudyType:         "personality",
		Language:          "de",
		DemographicFields: []string{"age", "semester"},
	}, schema.ItemBank{IDs: []string{"q1", "q2"}})

	d := record.NewDataset("study_1", testCreated, s)
	d.Records = []record.Record{
		{
			SessionID:         "s-1",
			StudyID:           "hilfo",
			ParticipantID:     "p1",
			StartTime:         testCreated,
			EndTime:           testCreated.Add(330*time.Second + 500*time.Millisecond),
			Status:            record.StatusCompleted,
			TotalItems:        2,
			AdministeredItems: 2,
			Ability:           ptr(0.25),
			StdError:          ptr(0.5),
			StudyType:         "personality",
			Language:          "de",
			Device:            "desktop",
			Browser:           "firefox",
			Responses:         map[string]float64{"q1": 1, "q2": 2.5},
			Age:               "30",
			Extra:             map[string]string{"semester": "2"},
		},
		{
			SessionID:         "s-2",
			StudyID:           "hilfo",
			ParticipantID:     "p, 2",
			StartTime:         testCreated.Add(time.Minute),
			Status:            record.StatusInProgress,
			TotalItems:        2,
			AdministeredItems: 1,
			StudyType:         "personality",
			Language:          "de",
			Responses:         map[string]float64{"q1": 3},
		},
	}
	_, err := d.Index()
	require.NoError(t, err)
	return d
}

// flowDataset returns a custom-flow dataset with generated item ids.
func flowDataset(t *testing.T) record.Dataset {
	t.Helper()

	s := schema.Build(schema.StudyConfig{
		Name:       "flow",
		StudyType:  "adaptive",
		Language:   "en",
		CustomFlow: true,
	}, schema.ItemBank{Count: 3})

	d := record.NewDataset("study_flow", testCreated, s)
	d.Records = []record.Record{
		{
			SessionID:         "f-1",
			StartTime:         testCreated,
			Status:            record.StatusInProgress,
			TotalItems:        3,
			AdministeredItems: 1,
			StudyType:         "adaptive",
			Language:          "en",
			Responses:         map[string]float64{"item_2": -1e-9},
			ParticipantCode:   "ABC \"x\"\nline two",
			Flow: &record.Flow{
				PagesCompleted: 2,
				PagesTotal:     5,
				PageTimings:    map[string]float64{"intro": 12.25, "consent": 3},
			},
		},
		{
			SessionID:         "f-2",
			StartTime:         testCreated.Add(time.Second),
			Status:            record.StatusInProgress,
			TotalItems:        3,
			AdministeredItems: 0,
			StudyType:         "adaptive",
			Language:          "en",
			Flow:              &record.Flow{},
		},
	}
	_, err := d.Index()
	require.NoError(t, err)
	return d
}
