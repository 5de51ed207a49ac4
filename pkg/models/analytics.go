package models

// TimeSeriesPoint is the mean answer value for one UTC day
type TimeSeriesPoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Value float64 `json:"value"`
}

// DailyCount is the number of responses received on one UTC day
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// QuestionStatistics holds the derived statistics for one question.
// Nil pointers mean "not defined for this data", not zero.
type QuestionStatistics struct {
	QuestionID   string            `json:"question_id"`
	Type         QuestionType      `json:"type"`
	Distribution map[string]int    `json:"distribution"`
	Labels       []string          `json:"labels"`   // distribution keys, first-seen order
	Answered     int               `json:"answered"` // sum of distribution counts
	Skipped      int               `json:"skipped"`  // answers present but of the wrong type
	Average      *float64          `json:"average,omitempty"`
	Median       *float64          `json:"median,omitempty"`
	Mode         *Value            `json:"mode,omitempty"`
	TimeSeries   []TimeSeriesPoint `json:"time_series,omitempty"` // nil when not computed
}

// AnalyticsSnapshot is the full derived view of a template's responses
type AnalyticsSnapshot struct {
	TemplateID     string                         `json:"template_id"`
	TotalResponses int                            `json:"total_responses"`
	PerQuestion    map[string]*QuestionStatistics `json:"per_question"`
	DailyResponses []DailyCount                   `json:"daily_responses"`
}

// ChartKind selects how a question's statistics are projected
type ChartKind string

const (
	ChartKindBar  ChartKind = "bar"
	ChartKindPie  ChartKind = "pie"
	ChartKindLine ChartKind = "line"
)

// ParseChartKind accepts the three chart kinds, case-sensitively
func ParseChartKind(s string) (ChartKind, bool) {
	switch k := ChartKind(s); k {
	case ChartKindBar, ChartKindPie, ChartKindLine:
		return k, true
	}
	return "", false
}

// ChartPoint is one labelled value in a chart series
type ChartPoint struct {
	Label   string   `json:"label"`
	Value   float64  `json:"value"`
	Percent *float64 `json:"percent,omitempty"` // set on every pie slice, 0 included
	Color   string   `json:"color,omitempty"`   // pie only
}

// ChartSeries is a display-ready dataset for one question
type ChartSeries struct {
	Kind       ChartKind    `json:"kind"`
	QuestionID string       `json:"question_id"`
	Points     []ChartPoint `json:"points"`
}
