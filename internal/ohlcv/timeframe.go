package ohlcv

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTimeframe is returned for unsupported timeframe strings.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

// Timeframe is a candle interval. Minute to day steps are fixed durations,
// weeks start on Monday UTC and months and years follow the calendar.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
	Timeframe1M  Timeframe = "1M"
	Timeframe3M  Timeframe = "3M"
	Timeframe1y  Timeframe = "1y"
)

var fixedSteps = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// ParseTimeframe validates s. Month and minute are case sensitive ("1M" vs "1m").
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	switch tf {
	case Timeframe1w, Timeframe1M, Timeframe3M, Timeframe1y:
		return tf, nil
	}
	if _, ok := fixedSteps[tf]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
}

// Floor returns the start of the bucket containing t.
func (tf Timeframe) Floor(t time.Time) time.Time {
	t = t.UTC()
	if step, ok := fixedSteps[tf]; ok {
		return t.Truncate(step)
	}
	switch tf {
	case Timeframe1w:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Timeframe1M:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Timeframe3M:
		month := (int(t.Month())-1)/3*3 + 1
		return time.Date(t.Year(), time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	case Timeframe1y:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Next returns the start of the bucket after the one starting at start.
func (tf Timeframe) Next(start time.Time) time.Time {
	if step, ok := fixedSteps[tf]; ok {
		return start.Add(step)
	}
	switch tf {
	case Timeframe1w:
		return start.AddDate(0, 0, 7)
	case Timeframe1M:
		return start.AddDate(0, 1, 0)
	case Timeframe3M:
		return start.AddDate(0, 3, 0)
	case Timeframe1y:
		return start.AddDate(1, 0, 0)
	}
	return start.Add(time.Minute)
}

// Buckets lists bucket starts covering [from, to), with from floored to the step.
func (tf Timeframe) Buckets(from, to time.Time, limit int) ([]time.Time, error) {
	var out []time.Time
	for b := tf.Floor(from); b.Before(to); b = tf.Next(b) {
		if limit > 0 && len(out) >= limit {
			return nil, fmt.Errorf("%w: more than %d buckets", ErrRangeTooLarge, limit)
		}
		out = append(out, b)
	}
	return out, nil
}
