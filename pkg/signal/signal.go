// Package signal decodes the completion-signal file the tagger job rewrites
// as it finishes each invocation.
//
// The file is read while the job may be in the middle of rewriting it, so
// decoding is tolerant: every field is extracted independently, a missing
// or malformed field falls back to its zero value, and content that is not
// valid JSON is scanned for "key": value tokens instead.
//
// Example content:
//
//	{
//	  "completed": true,
//	  "sequence": 2,
//	  "timestamp": "2026-03-01T14:02:11.412",
//	  "stats": {
//	    "total_images": 412,
//	    "successful": 405,
//	    "failed": 3,
//	    "no_car": 4,
//	    "avg_time_per_image": 5.2,
//	    "total_time": 2106.0
//	  },
//	  "dry_run": false
//	}
package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Field keys recognized in the signal file.
const (
	KeySequence        = "sequence"
	KeyTotalImages     = "total_images"
	KeySuccessful      = "successful"
	KeyFailed          = "failed"
	KeyNoCar           = "no_car"
	KeyAvgTimePerImage = "avg_time_per_image"
	KeyTotalTime       = "total_time"
	KeyDryRun          = "dry_run"
	KeyCompleted       = "completed"
	KeyTimestamp       = "timestamp"

	// statsKey is the nested object the tagger groups its counters under.
	statsKey = "stats"
)

// Signal is one decoded snapshot of the completion-signal file.
type Signal struct {
	// Sequence counts finished tagger invocations. It is the primary
	// completion indicator.
	Sequence int `json:"sequence"`

	TotalImages     int     `json:"total_images"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	NoCar           int     `json:"no_car"`
	AvgTimePerImage float64 `json:"avg_time_per_image"`
	TotalTime       float64 `json:"total_time,omitempty"`
	DryRun          bool    `json:"dry_run"`
	Completed       bool    `json:"completed,omitempty"`
	Timestamp       string  `json:"timestamp,omitempty"`
}

// Parse decodes raw signal content.
//
// ok is false when no usable sequence could be extracted; the remaining
// fields are still populated from whatever was readable. Parse never fails
// on malformed input.
func Parse(data []byte) (sig Signal, ok bool) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err == nil && doc != nil {
		return fromDocument(doc)
	}
	return fromTokens(data)
}

type lookupFunc func(key string) (any, bool)

func fromDocument(doc map[string]any) (Signal, bool) {
	stats, _ := doc[statsKey].(map[string]any)
	lookup := func(key string) (any, bool) {
		if v, ok := doc[key]; ok {
			return v, true
		}
		if stats != nil {
			if v, ok := stats[key]; ok {
				return v, true
			}
		}
		return nil, false
	}
	return decode(lookup)
}

func decode(lookup lookupFunc) (Signal, bool) {
	var sig Signal
	ok := false

	if v, found := lookup(KeySequence); found && v != nil {
		if n, err := toInt(v); err == nil {
			sig.Sequence = n
			ok = true
		}
	}

	sig.TotalImages = intField(lookup, KeyTotalImages)
	sig.Successful = intField(lookup, KeySuccessful)
	sig.Failed = intField(lookup, KeyFailed)
	sig.NoCar = intField(lookup, KeyNoCar)
	sig.AvgTimePerImage = floatField(lookup, KeyAvgTimePerImage)
	sig.TotalTime = floatField(lookup, KeyTotalTime)
	sig.DryRun = boolField(lookup, KeyDryRun)
	sig.Completed = boolField(lookup, KeyCompleted)
	if v, found := lookup(KeyTimestamp); found {
		sig.Timestamp, _ = cast.ToStringE(v)
	}

	return sig, ok
}

// toInt accepts integers, integral floats as produced by JSON decoding, and
// numeric strings. Strings are always read as base 10. Fractions are
// truncated; values outside the int range are malformed.
func toInt(v any) (int, error) {
	switch x := v.(type) {
	case float64:
		return floatToInt(x)
	case string:
		s := strings.TrimSpace(x)
		n, err := strconv.ParseInt(s, 10, 0)
		if err == nil {
			return int(n), nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return 0, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	}
	return cast.ToIntE(v)
}

func floatToInt(f float64) (int, error) {
	if math.IsNaN(f) || f < math.MinInt || f >= -math.MinInt {
		return 0, fmt.Errorf("%v out of int range", f)
	}
	return int(f), nil
}

func intField(lookup lookupFunc, key string) int {
	v, found := lookup(key)
	if !found {
		return 0
	}
	n, err := toInt(v)
	if err != nil {
		return 0
	}
	return n
}

func floatField(lookup lookupFunc, key string) float64 {
	v, found := lookup(key)
	if !found {
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return f
}

func boolField(lookup lookupFunc, key string) bool {
	v, found := lookup(key)
	if !found {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false
	}
	return b
}

var tokenPatterns = func() map[string]*regexp.Regexp {
	number := `(-?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?)`
	boolean := `(true|false)`
	str := `"((?:[^"\\]|\\.)*)"`

	patterns := map[string]string{
		KeySequence:        number,
		KeyTotalImages:     number,
		KeySuccessful:      number,
		KeyFailed:          number,
		KeyNoCar:           number,
		KeyAvgTimePerImage: number,
		KeyTotalTime:       number,
		KeyDryRun:          boolean,
		KeyCompleted:       boolean,
		KeyTimestamp:       str,
	}

	out := make(map[string]*regexp.Regexp, len(patterns))
	for key, value := range patterns {
		out[key] = regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*` + value)
	}
	return out
}()

// fromTokens extracts fields from content that is not a complete JSON
// object, typically a write the tagger has not finished yet. The first
// match for each key wins.
func fromTokens(data []byte) (Signal, bool) {
	lookup := func(key string) (any, bool) {
		re, ok := tokenPatterns[key]
		if !ok {
			return nil, false
		}
		m := re.FindSubmatch(data)
		if m == nil {
			return nil, false
		}
		return string(m[1]), true
	}
	return decode(lookup)
}
