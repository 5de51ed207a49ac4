// Package analytics derives statistics, chart series and exports from a
// template and its materialized responses. Everything here is a pure function
// of its arguments; callers fetch data through the repository package.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"form-analytics/pkg/models"
)

// ErrInvalidTemplate signals a caller contract violation, never bad data
var ErrInvalidTemplate = errors.New("invalid template")

const dayLayout = "2006-01-02"

// Options tunes what ComputeAnalytics derives beyond the default block
type Options struct {
	// TimeSeries adds per-day means for numeric questions
	TimeSeries bool
}

// observation is one accepted answer together with its response time
type observation struct {
	value models.Value
	at    time.Time
}

// ComputeAnalytics builds a snapshot for every question in the template.
// Missing or type-mismatched answers are skipped; only a nil template or
// duplicate question ids return an error.
func ComputeAnalytics(tmpl *models.Template, responses []models.FormResponse, opts Options) (*models.AnalyticsSnapshot, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}
	seen := make(map[string]bool, len(tmpl.Questions))
	for _, q := range tmpl.Questions {
		if seen[q.ID] {
			return nil, fmt.Errorf("%w: duplicate question id %q", ErrInvalidTemplate, q.ID)
		}
		seen[q.ID] = true
	}

	snapshot := &models.AnalyticsSnapshot{
		TemplateID:     tmpl.ID,
		TotalResponses: len(responses),
		PerQuestion:    make(map[string]*models.QuestionStatistics, len(tmpl.Questions)),
		DailyResponses: dailyCounts(responses),
	}

	for _, q := range tmpl.Questions {
		obs, skipped := collect(q, responses)
		stats := summarize(q, obs)
		stats.Skipped = skipped
		if opts.TimeSeries && q.Type.IsNumeric() {
			stats.TimeSeries = timeSeries(obs)
		}
		snapshot.PerQuestion[q.ID] = stats
	}

	return snapshot, nil
}

// collect gathers the valid answers for q in response order
func collect(q models.Question, responses []models.FormResponse) ([]observation, int) {
	obs := make([]observation, 0, len(responses))
	skipped := 0
	for i := range responses {
		a, ok := responses[i].AnswerFor(q.ID)
		if !ok {
			continue
		}
		v, ok := models.TypedValue(q, a)
		if !ok {
			skipped++
			continue
		}
		obs = append(obs, observation{value: v, at: responses[i].CreatedAt})
	}
	return obs, skipped
}

func summarize(q models.Question, obs []observation) *models.QuestionStatistics {
	stats := &models.QuestionStatistics{
		QuestionID:   q.ID,
		Type:         q.Type,
		Distribution: make(map[string]int),
		Labels:       []string{},
	}
	if len(obs) == 0 {
		return stats
	}

	// Mode candidates are tracked in first-seen order so ties resolve
	// deterministically to the earliest response.
	firstSeen := make(map[string]models.Value)
	for _, o := range obs {
		key := o.value.String()
		if _, ok := stats.Distribution[key]; !ok {
			stats.Labels = append(stats.Labels, key)
			firstSeen[key] = o.value
		}
		stats.Distribution[key]++
	}
	stats.Answered = len(obs)

	best := stats.Labels[0]
	for _, key := range stats.Labels[1:] {
		if stats.Distribution[key] > stats.Distribution[best] {
			best = key
		}
	}
	mode := firstSeen[best]
	stats.Mode = &mode

	if q.Type.IsNumeric() {
		nums := make([]float64, len(obs))
		for i, o := range obs {
			nums[i] = float64(o.value.Int)
		}
		avg := mean(nums)
		med := median(nums)
		stats.Average = &avg
		stats.Median = &med
	}
	return stats
}

// mean expects a non-empty slice
func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median expects a non-empty slice and does not modify it
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func timeSeries(obs []observation) []models.TimeSeriesPoint {
	byDay := map[string][]float64{}
	for _, o := range obs {
		day := o.at.UTC().Format(dayLayout)
		byDay[day] = append(byDay[day], float64(o.value.Int))
	}
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]models.TimeSeriesPoint, 0, len(days))
	for _, d := range days {
		out = append(out, models.TimeSeriesPoint{Date: d, Value: mean(byDay[d])})
	}
	return out
}

func dailyCounts(responses []models.FormResponse) []models.DailyCount {
	counts := map[string]int{}
	for i := range responses {
		counts[responses[i].CreatedAt.UTC().Format(dayLayout)]++
	}
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]models.DailyCount, 0, len(days))
	for _, d := range days {
		out = append(out, models.DailyCount{Date: d, Count: counts[d]})
	}
	return out
}
