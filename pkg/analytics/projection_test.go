package analytics

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"form-analytics/pkg/models"
)

func selectSnapshot(t *testing.T, answers ...any) *models.AnalyticsSnapshot {
	t.Helper()
	tmpl := &models.Template{Questions: []models.Question{
		{ID: "q1", Type: models.QuestionTypeSelect, Options: []string{"A", "B"}},
	}}
	snapshot, err := ComputeAnalytics(tmpl, responsesWith("q1", answers...), Options{})
	require.NoError(t, err)
	return snapshot
}

func TestProjectPieScenario(t *testing.T) {
	snapshot := selectSnapshot(t, "A", "A", "B")
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, snapshot.PerQuestion["q1"].Distribution)

	series, ok := Project(snapshot, models.ChartKindPie, "q1")
	require.True(t, ok)
	require.Len(t, series.Points, 2)
	assert.Equal(t, "A", series.Points[0].Label)
	require.NotNil(t, series.Points[0].Percent)
	assert.InDelta(t, 66.7, *series.Points[0].Percent, 1e-9)
	assert.Equal(t, "B", series.Points[1].Label)
	require.NotNil(t, series.Points[1].Percent)
	assert.InDelta(t, 33.3, *series.Points[1].Percent, 1e-9)
	assert.Equal(t, "hsl(0, 70%, 50%)", series.Points[0].Color)
	assert.Equal(t, "hsl(180, 70%, 50%)", series.Points[1].Color)
}

func TestProjectPieZeroTotal(t *testing.T) {
	snapshot := &models.AnalyticsSnapshot{PerQuestion: map[string]*models.QuestionStatistics{
		"q1": {
			QuestionID:   "q1",
			Distribution: map[string]int{"A": 0, "B": 0},
			Labels:       []string{"A", "B"},
		},
	}}

	series, ok := Project(snapshot, models.ChartKindPie, "q1")
	require.True(t, ok)
	for _, p := range series.Points {
		require.NotNil(t, p.Percent, p.Label)
		assert.Zero(t, *p.Percent, p.Label)
	}

	b, err := json.Marshal(series.Points)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"label":"A","value":0,"percent":0,`)
	assert.Contains(t, string(b), `"label":"B","value":0,"percent":0,`)

	bar, ok := Project(snapshot, models.ChartKindBar, "q1")
	require.True(t, ok)
	b, err = json.Marshal(bar.Points)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "percent", "bar points carry no share")
}

func TestProjectBarIsIdempotent(t *testing.T) {
	snapshot := selectSnapshot(t, "B", "A", "B")

	first, ok := Project(snapshot, models.ChartKindBar, "q1")
	require.True(t, ok)
	// Switching kinds in between must not disturb the snapshot.
	_, _ = Project(snapshot, models.ChartKindPie, "q1")
	_, _ = Project(snapshot, models.ChartKindLine, "q1")
	second, ok := Project(snapshot, models.ChartKindBar, "q1")
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, []models.ChartPoint{{Label: "B", Value: 2}, {Label: "A", Value: 1}}, first.Points)
	assert.Equal(t, map[string]int{"A": 1, "B": 2}, snapshot.PerQuestion["q1"].Distribution)
}

func TestProjectLine(t *testing.T) {
	responses := responsesWith("q1", 2.0, 4.0)
	withSeries, err := ComputeAnalytics(integerTemplate(), responses, Options{TimeSeries: true})
	require.NoError(t, err)

	series, ok := Project(withSeries, models.ChartKindLine, "q1")
	require.True(t, ok)
	assert.Equal(t, []models.ChartPoint{{Label: "2024-03-01", Value: 3}}, series.Points)

	withoutSeries, err := ComputeAnalytics(integerTemplate(), responses, Options{})
	require.NoError(t, err)
	_, ok = Project(withoutSeries, models.ChartKindLine, "q1")
	assert.False(t, ok, "line chart needs a computed time series")

	_, ok = Project(selectSnapshot(t, "A"), models.ChartKindLine, "q1")
	assert.False(t, ok, "select questions never carry a time series")
}

func TestProjectUnavailable(t *testing.T) {
	snapshot := selectSnapshot(t, "A")

	_, ok := Project(snapshot, models.ChartKindBar, "missing")
	assert.False(t, ok)
	_, ok = Project(snapshot, "radar", "q1")
	assert.False(t, ok)
	_, ok = Project(nil, models.ChartKindBar, "q1")
	assert.False(t, ok)
}

func TestToCSVRoundTrip(t *testing.T) {
	tmpl := &models.Template{
		Title: "Team survey",
		Questions: []models.Question{
			{ID: "q2", Title: "Favourite, or least disliked, \"tool\"", Type: models.QuestionTypeSelect, Options: []string{"vim", "emacs"}, Order: 1},
			{ID: "q1", Title: "Years", Type: models.QuestionTypeInteger, Order: 0},
		},
	}
	responses := []models.FormResponse{
		{ID: "r1", Answers: []models.Answer{{QuestionID: "q1", Value: 3.0}, {QuestionID: "q2", Value: "vim"}}},
		{ID: "r2", Answers: []models.Answer{{QuestionID: "q1", Value: 4.0}, {QuestionID: "q2", Value: "emacs"}}},
		{ID: "r3", Answers: []models.Answer{{QuestionID: "q1", Value: 8.0}, {QuestionID: "q2", Value: "vim"}}},
	}
	snapshot, err := ComputeAnalytics(tmpl, responses, Options{})
	require.NoError(t, err)

	out, err := ToCSV(tmpl, snapshot)
	require.NoError(t, err)

	recs, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Question", "Total Responses", "Average", "Median", "Mode"},
		{"Years", "3", "5.00", "4.00", "3"},
		{"Favourite, or least disliked, \"tool\"", "3", "", "", "vim"},
	}, recs)
}

func TestToCSVMissingStats(t *testing.T) {
	tmpl := &models.Template{Questions: []models.Question{{ID: "q1", Title: "Notes", Type: models.QuestionTypeText}}}
	snapshot, err := ComputeAnalytics(tmpl, nil, Options{})
	require.NoError(t, err)

	out, err := ToCSV(tmpl, snapshot)
	require.NoError(t, err)
	assert.Equal(t, "Question,Total Responses,Average,Median,Mode\nNotes,0,,,\n", out)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "Job Application_analytics.csv", ExportFilename(&models.Template{Title: "Job Application"}))
	assert.Equal(t, "a_b_analytics.csv", ExportFilename(&models.Template{Title: "a/b"}))
	assert.Equal(t, "tmpl_9_analytics.csv", ExportFilename(&models.Template{ID: "tmpl_9"}))
	assert.Equal(t, "Job Application_responses.csv", ResultsFilename(&models.Template{Title: "Job Application"}))
}

func TestBuildResultsTable(t *testing.T) {
	tmpl := &models.Template{Questions: []models.Question{
		{ID: "q2", Title: "Experience", Type: models.QuestionTypeInteger, Order: 1, ShowInResults: true},
		{ID: "q1", Title: "Position", Type: models.QuestionTypeText, Order: 0, ShowInResults: true},
		{ID: "q3", Title: "Private", Type: models.QuestionTypeText, Order: 2},
	}}
	responses := []models.FormResponse{
		{ID: "r1", UserName: "Ann", CreatedAt: day(1, 0), Answers: []models.Answer{
			{QuestionID: "q1", Value: "Engineer"},
			{QuestionID: "q2", Value: 4.0},
			{QuestionID: "q3", Value: "secret"},
		}},
		{ID: "r2", UserName: "Bob", CreatedAt: day(2, 0), Answers: []models.Answer{
			{QuestionID: "q2", Value: "lots"},
		}},
	}

	table := BuildResultsTable(tmpl, responses)

	require.Len(t, table.Columns, 2)
	assert.Equal(t, "q1", table.Columns[0].ID)
	assert.Equal(t, "q2", table.Columns[1].ID)
	assert.Equal(t, []string{"Engineer", "4"}, table.Rows[0].Cells)
	assert.Equal(t, []string{"-", "lots"}, table.Rows[1].Cells)

	b, err := ResultsCSV(table)
	require.NoError(t, err)
	recs, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"response_id", "user", "submitted_at", "Position", "Experience"}, recs[0])
	assert.Equal(t, []string{"r1", "Ann", "2024-03-01T00:00:00Z", "Engineer", "4"}, recs[1])
}
