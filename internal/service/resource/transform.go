package resource

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/garrettladley/whoopweb/internal/client/whoop"
)

// ScorePoint is one day's value in a chart series.
type ScorePoint struct {
	Date  string  `json:"date"`
	Score float64 `json:"score"`
}

type SleepPoint struct {
	Date        string  `json:"date"`
	Performance float64 `json:"performance"`
	HoursAsleep float64 `json:"hours_asleep"`
	Nap         bool    `json:"nap"`
}

// Series is one page of chart points. NextToken is the cursor for the following page and
// is passed back as the nextToken query parameter.
type Series[P any] struct {
	Points    []P    `json:"points"`
	NextToken string `json:"next_token,omitempty"`
}

type BodySummary struct {
	HeightMeter    float64 `json:"height_meter"`
	WeightKilogram float64 `json:"weight_kilogram"`
	MaxHeartRate   int     `json:"max_heart_rate"`
	BMI            float64 `json:"bmi"`
}

// Unscored records are skipped; series are ordered oldest first.

func recoveryPoints(page whoop.PaginatedResponse[whoop.Recovery]) Series[ScorePoint] {
	out := make([]ScorePoint, 0, len(page.Records))
	for _, r := range page.Records {
		if !r.Scored() {
			continue
		}
		out = append(out, ScorePoint{
			Date:  date(r.CreatedAt, time.UTC),
			Score: r.Score.RecoveryScore,
		})
	}
	return series(page, sortByDate(out, func(p ScorePoint) string { return p.Date }))
}

func strainPoints(page whoop.PaginatedResponse[whoop.Cycle]) Series[ScorePoint] {
	out := make([]ScorePoint, 0, len(page.Records))
	for _, c := range page.Records {
		if !c.Scored() {
			continue
		}
		out = append(out, ScorePoint{
			Date:  date(c.Start, whoop.Location(c.TimezoneOffset)),
			Score: round(c.Score.Strain, 1),
		})
	}
	return series(page, sortByDate(out, func(p ScorePoint) string { return p.Date }))
}

// sleepPoints dates each sleep by the local day it ended on.
func sleepPoints(page whoop.PaginatedResponse[whoop.Sleep]) Series[SleepPoint] {
	out := make([]SleepPoint, 0, len(page.Records))
	for _, s := range page.Records {
		if !s.Scored() {
			continue
		}
		asleep := time.Duration(s.Score.StageSummary.AsleepMilli()) * time.Millisecond
		out = append(out, SleepPoint{
			Date:        date(s.End, whoop.Location(s.TimezoneOffset)),
			Performance: s.Score.SleepPerformancePercentage,
			HoursAsleep: round(asleep.Hours(), 2),
			Nap:         s.Nap,
		})
	}
	return series(page, sortByDate(out, func(p SleepPoint) string { return p.Date }))
}

func bodySummary(m whoop.BodyMeasurement) BodySummary {
	s := BodySummary{
		HeightMeter:    m.HeightMeter,
		WeightKilogram: m.WeightKilogram,
		MaxHeartRate:   m.MaxHeartRate,
	}
	if m.HeightMeter > 0 {
		s.BMI = round(m.WeightKilogram/(m.HeightMeter*m.HeightMeter), 1)
	}
	return s
}

func series[T, P any](page whoop.PaginatedResponse[T], points []P) Series[P] {
	s := Series[P]{Points: points}
	if page.NextToken != nil {
		s.NextToken = *page.NextToken
	}
	return s
}

func date(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func sortByDate[T any](points []T, key func(T) string) []T {
	slices.SortStableFunc(points, func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	})
	return points
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
