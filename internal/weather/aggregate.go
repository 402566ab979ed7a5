package weather

import (
	"math"
	"sort"
	"time"
)

// AggregateReadings combines multiple provider readings into a single Reading.
// Numeric fields are averaged over the readings that report them (NaN marks a
// field a provider does not report); conditions are selected by majority (ties
// go to the condition seen first).
func AggregateReadings(readings []ProviderReading) Reading {
	if len(readings) == 0 {
		return Reading{
			Timestamp: time.Now().UTC(),
			Condition: ConditionUnknown,
		}
	}

	c := combine(readings, false)
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	return Reading{
		Timestamp:   c.Timestamp.UTC(),
		Temperature: orZero(c.TemperatureC),
		Humidity:    orZero(c.HumidityPct),
		WindSpeed:   orZero(c.WindSpeedMS),
		Pressure:    orZero(c.PressureHpa),
		PrecipMM:    orZero(c.PrecipMm),
		Condition:   c.Condition,
	}
}

// mean accumulates a field, skipping NaN.
type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.sum += v
	m.n++
}

func (m mean) avg() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}

func (m mean) total() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum
}

func orZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// combine merges readings field by field. Fields no reading reports stay NaN.
// With sumPrecip the precipitation amounts are added instead of averaged.
func combine(readings []ProviderReading, sumPrecip bool) ProviderReading {
	var temp, humidity, wind, pressure, precip mean

	conditionCounts := make(map[Condition]int)
	var conditionOrder []Condition
	var newestTS time.Time

	for _, r := range readings {
		temp.add(r.TemperatureC)
		humidity.add(r.HumidityPct)
		wind.add(r.WindSpeedMS)
		pressure.add(r.PressureHpa)
		precip.add(r.PrecipMm)

		if _, seen := conditionCounts[r.Condition]; !seen {
			conditionOrder = append(conditionOrder, r.Condition)
		}
		conditionCounts[r.Condition]++

		if r.Timestamp.After(newestTS) {
			newestTS = r.Timestamp
		}
	}

	bestCond := ConditionUnknown
	bestCount := 0
	for _, cond := range conditionOrder {
		if count := conditionCounts[cond]; count > bestCount {
			bestCount = count
			bestCond = cond
		}
	}

	out := ProviderReading{
		ProviderName: readings[0].ProviderName,
		Timestamp:    newestTS,
		TemperatureC: temp.avg(),
		HumidityPct:  humidity.avg(),
		WindSpeedMS:  wind.avg(),
		PressureHpa:  pressure.avg(),
		PrecipMm:     precip.avg(),
		Condition:    bestCond,
	}
	if sumPrecip {
		out.PrecipMm = precip.total()
	}
	return out
}

// perProviderDay collapses each provider's readings for one day into a single
// reading with the day's precipitation total, so a provider sending 3-hour
// steps weighs the same as one sending a daily summary.
func perProviderDay(readings []ProviderReading) []ProviderReading {
	index := make(map[string]int)
	var groups [][]ProviderReading
	for _, r := range readings {
		i, ok := index[r.ProviderName]
		if !ok {
			i = len(groups)
			index[r.ProviderName] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}

	out := make([]ProviderReading, 0, len(groups))
	for _, g := range groups {
		if len(g) == 1 {
			out = append(out, g[0])
			continue
		}
		out = append(out, combine(g, true))
	}
	return out
}

// bucketStart returns the start of the hour (HOURLY) or UTC day (DAILY) that ts falls in.
func bucketStart(category Category, ts time.Time) time.Time {
	ts = ts.UTC()
	if category == CategoryDaily {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	return ts.Truncate(time.Hour)
}

// AggregateSeries groups readings into hourly or daily buckets and aggregates
// each bucket. Daily buckets first reduce each provider to one reading. The result is ordered by bucket start ascending and every
// reading's Timestamp is its bucket start.
func AggregateSeries(category Category, readings []ProviderReading) []Reading {
	buckets := make(map[time.Time][]ProviderReading)
	for _, r := range readings {
		k := bucketStart(category, r.Timestamp)
		buckets[k] = append(buckets[k], r)
	}

	keys := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	series := make([]Reading, 0, len(keys))
	for _, k := range keys {
		bucket := buckets[k]
		if category == CategoryDaily {
			bucket = perProviderDay(bucket)
		}
		agg := AggregateReadings(bucket)
		agg.Timestamp = k
		series = append(series, agg)
	}
	return series
}

// BuildReport aggregates raw provider readings into the Report for category.
func BuildReport(category Category, loc Location, readings []ProviderReading) Report {
	report := Report{
		Category:  category,
		Location:  loc,
		Readings:  []Reading{},
		Providers: contributions(readings),
	}
	if len(readings) == 0 {
		return report
	}
	if category == CategoryCurrent {
		report.Readings = []Reading{AggregateReadings(readings)}
		return report
	}
	report.Readings = AggregateSeries(category, readings)
	return report
}

func contributions(readings []ProviderReading) []ProviderContribution {
	index := make(map[string]int)
	var out []ProviderContribution
	for _, r := range readings {
		i, ok := index[r.ProviderName]
		if !ok {
			i = len(out)
			index[r.ProviderName] = i
			out = append(out, ProviderContribution{ProviderName: r.ProviderName})
		}
		out[i].Readings++
		if r.Timestamp.After(out[i].Timestamp) {
			out[i].Timestamp = r.Timestamp.UTC()
		}
	}
	return out
}
