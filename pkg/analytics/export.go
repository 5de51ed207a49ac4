package analytics

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"form-analytics/pkg/models"
)

var summaryHeader = []string{"Question", "Total Responses", "Average", "Median", "Mode"}

// ToCSV renders one summary row per question in display order.
// Fields are quoted per RFC 4180, so titles with commas or quotes survive
// a round trip.
func ToCSV(tmpl *models.Template, snapshot *models.AnalyticsSnapshot) (string, error) {
	if tmpl == nil || snapshot == nil {
		return "", fmt.Errorf("%w: nil template or snapshot", ErrInvalidTemplate)
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(summaryHeader); err != nil {
		return "", err
	}
	for _, q := range tmpl.OrderedQuestions() {
		rec := []string{q.Title, "0", "", "", ""}
		if stats := snapshot.PerQuestion[q.ID]; stats != nil {
			total := 0
			for _, n := range stats.Distribution {
				total += n
			}
			rec[1] = strconv.Itoa(total)
			rec[2] = fixed2(stats.Average)
			rec[3] = fixed2(stats.Median)
			if stats.Mode != nil {
				rec[4] = stats.Mode.String()
			}
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

func fixed2(v *float64) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}

// ExportFilename is the download name for a template's summary CSV
func ExportFilename(tmpl *models.Template) string {
	return filenameStem(tmpl) + "_analytics.csv"
}

// ResultsFilename is the download name for the per-response export
func ResultsFilename(tmpl *models.Template) string {
	return filenameStem(tmpl) + "_responses.csv"
}

func filenameStem(tmpl *models.Template) string {
	title := strings.TrimSpace(tmpl.Title)
	if title == "" {
		title = tmpl.ID
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(title)
}

// ResultsTable is the per-response grid shown to template authors
type ResultsTable struct {
	Columns []models.Question `json:"columns"`
	Rows    []ResultsRow      `json:"rows"`
}

// ResultsRow is one response rendered against the table's columns
type ResultsRow struct {
	ResponseID string    `json:"response_id"`
	UserName   string    `json:"user_name"`
	CreatedAt  time.Time `json:"created_at"`
	Cells      []string  `json:"cells"`
}

// missingCell marks a column the response did not answer
const missingCell = "-"

// BuildResultsTable lays out responses against the questions flagged
// ShowInResults, preserving the order of responses.
func BuildResultsTable(tmpl *models.Template, responses []models.FormResponse) ResultsTable {
	columns := make([]models.Question, 0, len(tmpl.Questions))
	for _, q := range tmpl.OrderedQuestions() {
		if q.ShowInResults {
			columns = append(columns, q)
		}
	}
	rows := make([]ResultsRow, 0, len(responses))
	for i := range responses {
		r := &responses[i]
		cells := make([]string, len(columns))
		for j, q := range columns {
			cells[j] = displayCell(q, r)
		}
		rows = append(rows, ResultsRow{ResponseID: r.ID, UserName: r.UserName, CreatedAt: r.CreatedAt, Cells: cells})
	}
	return ResultsTable{Columns: columns, Rows: rows}
}

func displayCell(q models.Question, r *models.FormResponse) string {
	a, ok := r.AnswerFor(q.ID)
	if !ok || a.Value == nil {
		return missingCell
	}
	if v, ok := models.TypedValue(q, a); ok {
		return v.String()
	}
	return fmt.Sprint(a.Value)
}

// ResultsCSV renders a results table in wide format, one row per response
func ResultsCSV(table ResultsTable) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := make([]string, 0, 3+len(table.Columns))
	header = append(header, "response_id", "user", "submitted_at")
	for _, q := range table.Columns {
		header = append(header, q.Title)
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range table.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, row.ResponseID, row.UserName, row.CreatedAt.UTC().Format(time.RFC3339))
		rec = append(rec, row.Cells...)
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
