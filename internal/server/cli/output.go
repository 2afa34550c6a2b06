package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"golang.org/x/term"

	"github.com/iudanet/fieldsync/internal/models"
)

// printer renders command results. Text output is an aligned, coloured
// table on a terminal and plain tab-separated rows otherwise, so it can be
// piped into cut or awk.
type printer struct {
	w      io.Writer
	format string
	tty    bool
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format, tty: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *printer) json() bool {
	return p.format == "json"
}

// JSON writes v as indented JSON.
func (p *printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table writes a header and rows.
func (p *printer) Table(header []string, rows [][]string) error {
	if !p.tty {
		for _, row := range append([][]string{header}, rows...) {
			if _, err := fmt.Fprintln(p.w, strings.Join(row, "\t")); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, color.New(color.Bold).Sprint(strings.Join(header, "\t")))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Line writes one formatted line.
func (p *printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) paint(c *color.Color, s string) string {
	if !p.tty {
		return s
	}
	return c.Sprint(s)
}

func (p *printer) queueStatus(s models.QueueStatus) string {
	switch s {
	case models.QueueStatusCompleted:
		return p.paint(color.New(color.FgGreen), string(s))
	case models.QueueStatusFailed:
		return p.paint(color.New(color.FgRed), string(s))
	case models.QueueStatusConflict:
		return p.paint(color.New(color.FgYellow), string(s))
	case models.QueueStatusProcessing:
		return p.paint(color.New(color.FgCyan), string(s))
	default:
		return string(s)
	}
}

func (p *printer) sessionStatus(s models.SessionStatus) string {
	switch s {
	case models.SessionSuccess:
		return p.paint(color.New(color.FgGreen), string(s))
	case models.SessionPartial:
		return p.paint(color.New(color.FgYellow), string(s))
	case models.SessionFailed:
		return p.paint(color.New(color.FgRed), string(s))
	default:
		return string(s)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var timeParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseTime accepts RFC3339 or an English expression such as "yesterday"
// or "2 days ago", resolved against now. Empty input is the zero time.
func parseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	r, err := timeParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot understand time %q", s)
	}
	return r.Time.UTC(), nil
}
