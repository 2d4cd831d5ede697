// Package valuation resolves a single base price from the heterogeneous
// appraisal payloads produced by the upstream valuation flow.
//
// The upstream has shipped the price under several different shapes over
// time. Instead of probing the object graph reflectively, extraction is an
// ordered list of typed accessors tried in sequence; the first one that
// yields a finite positive number wins. Absence of any usable signal is an
// explicit failure, never a substituted default.
package valuation

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// maxScanDepth bounds the last-resort recursive scan.
const maxScanDepth = 5

// accessor inspects a decoded payload and reports a candidate price.
type accessor func(v any) (float64, bool)

// accessors are tried strictly in order. Direct named fields outrank the
// (price_min, price_med) pair, which outranks the recursive scan.
var accessors = []accessor{
	atPath("functionResponse", "valuation", "calcValuation", "price"),
	atPath("functionResponse", "valuation", "calcValuation", "price_med"),
	atPath("price"),
	atPath("reservePrice"),
	atPath("valuation"),
	atPath("valuationPrice"),
	atPath("estimatedValue"),
	atPath("vehicleValue"),
	atPath("price_med"),
	atPath("priceMed"),
	atPath("averagePrice"),
	atPath("avgPrice"),
	pairMean,
	scan,
	selfNumeric,
}

// ExtractPrice resolves the base price from a decoded JSON payload.
// It returns (0, false) when the payload carries no usable price signal.
func ExtractPrice(payload any) (float64, bool) {
	if payload == nil {
		return 0, false
	}
	for _, a := range accessors {
		if price, ok := a(payload); ok {
			return price, true
		}
	}
	return 0, false
}

// ExtractFromRaw decodes raw JSON and resolves the base price from it.
func ExtractFromRaw(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return ExtractPrice(v)
}

// atPath returns an accessor for a fixed key path ending in a numeric leaf.
func atPath(path ...string) accessor {
	return func(v any) (float64, bool) {
		cur := v
		for _, key := range path {
			m, ok := cur.(map[string]any)
			if !ok {
				return 0, false
			}
			cur, ok = m[key]
			if !ok {
				return 0, false
			}
		}
		return positiveNumber(cur)
	}
}

// pairContainers are the places a (price_min, price_med) pair may hide, in
// priority order. An empty path means the top level of the payload.
var pairContainers = [][]string{
	{},
	{"functionResponse", "valuation", "calcValuation"},
	{"data"},
	{"apiResponse"},
	{"response"},
	{"result"},
}

// pairMean resolves the mean of a (price_min, price_med) pair.
func pairMean(v any) (float64, bool) {
	for _, path := range pairContainers {
		cur := v
		ok := true
		for _, key := range path {
			m, isMap := cur.(map[string]any)
			if !isMap {
				ok = false
				break
			}
			cur, ok = m[key]
			if !ok {
				break
			}
		}
		if !ok {
			continue
		}
		m, isMap := cur.(map[string]any)
		if !isMap {
			continue
		}
		lo, okLo := positiveNumber(m["price_min"])
		hi, okHi := positiveNumber(m["price_med"])
		if okLo && okHi {
			mean := (lo + hi) / 2
			if mean > 0 {
				return mean, true
			}
		}
	}
	return 0, false
}

// priceLikeKey reports whether a key name suggests a price field.
func priceLikeKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "price") ||
		strings.Contains(k, "value") ||
		strings.Contains(k, "cost") ||
		strings.Contains(k, "valuation")
}

// scan is the last-resort search: a depth-bounded DFS over the object graph
// in sorted key order, returning the first positive number under a
// price-like key. Sorted traversal keeps the result deterministic across
// payloads that decode into unordered maps.
func scan(v any) (float64, bool) {
	return scanDepth(v, 0)
}

func scanDepth(v any, depth int) (float64, bool) {
	if depth > maxScanDepth {
		return 0, false
	}
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if priceLikeKey(k) {
				if n, ok := positiveNumber(t[k]); ok {
					return n, true
				}
			}
		}
		for _, k := range keys {
			if n, ok := scanDepth(t[k], depth+1); ok {
				return n, true
			}
		}
	case []any:
		for _, item := range t {
			if n, ok := scanDepth(item, depth+1); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// selfNumeric handles payloads that are just a number or a numeric string.
func selfNumeric(v any) (float64, bool) {
	return positiveNumber(v)
}

// positiveNumber coerces JSON scalars to a finite positive float64.
func positiveNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0, false
	}
	return n, true
}
