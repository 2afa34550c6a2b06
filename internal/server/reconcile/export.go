package reconcile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
)

// ExportFormat selects the delimiter of a session log export.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatTSV ExportFormat = "tsv"
)

// ParseExportFormat accepts "csv" and "tsv".
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case FormatCSV, FormatTSV:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	if f == FormatTSV {
		return "text/tab-separated-values; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

var sessionColumns = []string{
	"id",
	"device_id",
	"username",
	"trigger",
	"status",
	"start_time",
	"end_time",
	"items_processed",
	"items_succeeded",
	"items_failed",
	"items_conflicted",
}

// ExportSessionLogs writes logs as a header row plus one row per log.
func ExportSessionLogs(w io.Writer, logs []*models.SyncSessionLog, format ExportFormat) error {
	cw := csv.NewWriter(w)
	switch format {
	case FormatCSV:
	case FormatTSV:
		cw.Comma = '\t'
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}

	if err := cw.Write(sessionColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, l := range logs {
		row := []string{
			l.ID,
			l.DeviceID,
			l.Username,
			string(l.Details.Trigger),
			string(l.Status),
			l.StartTime.UTC().Format(time.RFC3339),
			l.EndTime.UTC().Format(time.RFC3339),
			strconv.Itoa(l.ItemsProcessed),
			strconv.Itoa(l.ItemsSucceeded),
			strconv.Itoa(l.ItemsFailed),
			strconv.Itoa(l.ItemsConflicted),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write session %s: %w", l.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
