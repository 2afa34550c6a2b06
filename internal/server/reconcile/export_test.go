package reconcile

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/models"
)

func exportFixture() []*models.SyncSessionLog {
	msk := time.FixedZone("MSK", 3*60*60)
	return []*models.SyncSessionLog{
		{
			ID:             "s-1",
			DeviceID:       "tablet-1",
			Username:       "tech-tablet-1",
			Status:         models.SessionSuccess,
			Details:        models.SessionDetails{Trigger: models.TriggerManual},
			StartTime:      testStart,
			EndTime:        testStart.Add(2 * time.Second),
			ItemsProcessed: 3,
			ItemsSucceeded: 3,
		},
		{
			ID:              "s-2",
			Username:        `Ivanov, "Lead"`,
			Status:          models.SessionPartial,
			Details:         models.SessionDetails{Trigger: models.TriggerScheduled},
			StartTime:       time.Date(2026, 5, 4, 14, 0, 0, 0, msk),
			EndTime:         time.Date(2026, 5, 4, 14, 0, 5, 0, msk),
			ItemsProcessed:  4,
			ItemsSucceeded:  2,
			ItemsFailed:     1,
			ItemsConflicted: 1,
		},
	}
}

func TestExportSessionLogs(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, format := range []ExportFormat{FormatCSV, FormatTSV} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, ExportSessionLogs(&buf, exportFixture(), format))
			g.Assert(t, "sessions_"+string(format), buf.Bytes())
		})
	}
}

func TestExportSessionLogs_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportSessionLogs(&buf, nil, FormatCSV))
	assert.Equal(t, "id,device_id,username,trigger,status,start_time,end_time,items_processed,items_succeeded,items_failed,items_conflicted\n", buf.String())

	assert.Error(t, ExportSessionLogs(&buf, nil, "xlsx"))
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in          string
		want        ExportFormat
		contentType string
		wantErr     bool
	}{
		{in: "csv", want: FormatCSV, contentType: "text/csv; charset=utf-8"},
		{in: "tsv", want: FormatTSV, contentType: "text/tab-separated-values; charset=utf-8"},
		{in: "CSV", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExportFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.contentType, got.ContentType())
		})
	}
}
