// Package timestamp coerces the temporal shapes found in stored content
// records into epoch milliseconds.
//
// A raw value is first classified into one of four variants (Epoch, ISO,
// Seconds, Convertible) and then converted by a single switch in Millis.
// Anything that cannot be classified or parsed becomes 0, which callers treat
// as "absent" and which sorts as the oldest possible instant.
package timestamp

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dustin/go-humanize"
)

// maxMillis is the last instant that still formats as a four-digit ISO year.
var maxMillis = float64(time.Date(9999, 12, 31, 23, 59, 59, 999e6, time.UTC).UnixMilli())

// Raw is a timestamp as it arrived from storage.
type Raw interface {
	raw()
}

// Epoch is a numeric epoch in milliseconds.
type Epoch float64

// ISO is a date string: RFC 3339 or anything dateparse understands.
type ISO string

// Seconds is a database timestamp object exposing seconds and nanoseconds.
type Seconds struct {
	Seconds     float64
	Nanoseconds float64
}

// Convertible wraps a value that knows how to turn itself into a time.
type Convertible struct {
	ToDate func() time.Time
}

func (Epoch) raw()       {}
func (ISO) raw()         {}
func (Seconds) raw()     {}
func (Convertible) raw() {}

type toDater interface {
	ToDate() time.Time
}

type asTimer interface {
	AsTime() time.Time
}

// Classify maps a decoded value onto one of the Raw variants.
// Falsy values (nil, false, "", 0) are not classified.
func Classify(v any) (Raw, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case Raw:
		return t, true
	case bool:
		return nil, false
	case time.Time:
		if t.IsZero() {
			return nil, false
		}
		return Convertible{ToDate: func() time.Time { return t }}, true
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil, false
		}
		return Convertible{ToDate: func() time.Time { return *t }}, true
	case toDater:
		return Convertible{ToDate: t.ToDate}, true
	case asTimer:
		return Convertible{ToDate: t.AsTime}, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, false
		}
		return ISO(s), true
	case map[string]any:
		return classifySeconds(t)
	}

	if n, ok := number(v); ok {
		if n == 0 || math.IsNaN(n) {
			return nil, false
		}
		return Epoch(n), true
	}
	return nil, false
}

func classifySeconds(m map[string]any) (Raw, bool) {
	for _, key := range []string{"seconds", "_seconds"} {
		secs, ok := number(m[key])
		if !ok {
			continue
		}
		var nanos float64
		for _, nk := range []string{"nanoseconds", "_nanoseconds", "nanos"} {
			if n, ok := number(m[nk]); ok {
				nanos = n
				break
			}
		}
		return Seconds{Seconds: secs, Nanoseconds: nanos}, true
	}
	return nil, false
}

// Millis converts a classified timestamp to epoch milliseconds.
// Unparseable, pre-epoch or post-9999 values return 0.
func Millis(r Raw) int64 {
	var ms float64
	switch t := r.(type) {
	case Epoch:
		ms = float64(t)
	case ISO:
		parsed, ok := parseString(string(t))
		if !ok {
			return 0
		}
		ms = float64(parsed.UnixMilli())
	case Seconds:
		ms = t.Seconds*1000 + t.Nanoseconds/1e6
	case Convertible:
		if t.ToDate == nil {
			return 0
		}
		d := t.ToDate()
		if d.IsZero() {
			return 0
		}
		ms = float64(d.UnixMilli())
	default:
		return 0
	}

	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 || ms > maxMillis {
		return 0
	}
	return int64(math.Round(ms))
}

// CoerceMs classifies and converts v in one step.
func CoerceMs(v any) int64 {
	r, ok := Classify(v)
	if !ok {
		return 0
	}
	return Millis(r)
}

// Time returns ms as a UTC time, or the zero time for 0.
func Time(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// FormatISO renders ms the way stored records carry dates. 0 renders as "".
func FormatISO(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return Time(ms).Format("2006-01-02T15:04:05.000Z")
}

// Label renders ms as a short display date, e.g. "Mar 1, 2024".
func Label(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return Time(ms).Format("Jan 2, 2006")
}

// Relative renders ms relative to now, e.g. "3 days ago".
func Relative(ms int64, now time.Time) string {
	if ms <= 0 {
		return ""
	}
	return humanize.RelTime(Time(ms), now, "ago", "from now")
}

func parseString(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	}
	return 0, false
}
