package analytics

import (
	"fmt"

	"github.com/shopspring/decimal"

	"form-analytics/pkg/models"
)

// Project shapes one question's statistics into a chart series.
// The boolean is false when the chart is unavailable: unknown question or
// kind, or a line chart without a computed time series. The snapshot is
// only read, so projecting the same snapshot repeatedly is safe.
func Project(snapshot *models.AnalyticsSnapshot, kind models.ChartKind, questionID string) (models.ChartSeries, bool) {
	if snapshot == nil {
		return models.ChartSeries{}, false
	}
	stats, ok := snapshot.PerQuestion[questionID]
	if !ok || stats == nil {
		return models.ChartSeries{}, false
	}

	switch kind {
	case models.ChartKindBar:
		return models.ChartSeries{Kind: kind, QuestionID: questionID, Points: distributionPoints(stats)}, true
	case models.ChartKindPie:
		points := distributionPoints(stats)
		applyShares(points)
		return models.ChartSeries{Kind: kind, QuestionID: questionID, Points: points}, true
	case models.ChartKindLine:
		if stats.TimeSeries == nil {
			return models.ChartSeries{}, false
		}
		points := make([]models.ChartPoint, 0, len(stats.TimeSeries))
		for _, p := range stats.TimeSeries {
			points = append(points, models.ChartPoint{Label: p.Date, Value: p.Value})
		}
		return models.ChartSeries{Kind: kind, QuestionID: questionID, Points: points}, true
	}
	return models.ChartSeries{}, false
}

func distributionPoints(stats *models.QuestionStatistics) []models.ChartPoint {
	points := make([]models.ChartPoint, 0, len(stats.Labels))
	for _, label := range stats.Labels {
		points = append(points, models.ChartPoint{
			Label: label,
			Value: float64(stats.Distribution[label]),
		})
	}
	return points
}

// applyShares fills Percent (1 dp) and a slice colour; a zero total
// yields 0% for every slice.
func applyShares(points []models.ChartPoint) {
	var total float64
	for _, p := range points {
		total += p.Value
	}
	hundred := decimal.NewFromInt(100)
	for i := range points {
		points[i].Color = sliceColor(i, len(points))
		pct := 0.0
		if total != 0 {
			pct = decimal.NewFromFloat(points[i].Value).
				Div(decimal.NewFromFloat(total)).
				Mul(hundred).
				Round(1).
				InexactFloat64()
		}
		points[i].Percent = &pct
	}
}

func sliceColor(i, n int) string {
	return fmt.Sprintf("hsl(%d, 70%%, 50%%)", i*360/n)
}
