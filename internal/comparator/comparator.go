// Package comparator implements the field-level comparators that turn a
// pair of demographic field values into an (equal?, metrics) result, and the
// wrappers that assemble a full name/address comparison for two records.
package comparator

import (
	"strings"

	"github.com/rawblock/empi-engine/internal/metrickit"
)

// DefaultSliceMin is the floor prefix length slice_string_check will not go
// below.
const DefaultSliceMin = 3

// SliceStringCheck implements the prefix-match weighting rule: starting at
// weight 1.0 and the longer string's length, shrink the compared prefix one
// character at a time until a match is found or sliceMin is reached,
// subtracting 1/L from the weight at every miss.
func SliceStringCheck(a, b string, sliceMin int) (bool, float64) {
	ra, rb := []rune(a), []rune(b)
	sliceMax := len(ra)
	if len(rb) > sliceMax {
		sliceMax = len(rb)
	}
	if sliceMax == 0 {
		return false, 0
	}
	weight := 1.0
	for i := sliceMax; i >= sliceMin; i-- {
		if slicePrefix(ra, i) == slicePrefix(rb, i) {
			return true, roundTo1(weight)
		}
		weight -= 1.0 / float64(sliceMax)
	}
	return false, 0
}

func slicePrefix(r []rune, n int) string {
	if n > len(r) {
		n = len(r)
	}
	return string(r[:n])
}

func roundTo1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}

// AlphaCompositeNameCheck strips non-letter characters from both inputs and
// compares the results.
func AlphaCompositeNameCheck(a, b string) (bool, string, string) {
	subA := metrickit.StripNonAlpha(a)
	subB := metrickit.StripNonAlpha(b)
	return subA == subB, subA, subB
}

// Result is the (equal?, metrics) pair every comparator returns. Metrics
// values are heterogeneous (bool/string/float64) to match the shape each
// rule actually produces.
type Result struct {
	Equal   bool
	Metrics map[string]interface{}
}

// FamilyNameCheck compares two family names, flagging JR/SR suffix
// normalization and alpha-stripped matches along the way.
func FamilyNameCheck(a, b string) Result {
	if a == b {
		return Result{Equal: true, Metrics: map[string]interface{}{"equal": true}}
	}
	metrics := metricsMap(metrickit.PairwiseStringMetrics(a, b))

	trimA, trimB := metrickit.TrimBoth(a, b)
	if trimA == trimB {
		metrics["trim_result"] = trimA
	}

	alphaEqual, subA, subB := AlphaCompositeNameCheck(a, b)
	if alphaEqual {
		metrics["sub_result"] = subA
	}

	jrA, jrB := metrickit.ReplaceBoth(subA, subB, "JR", "")
	jrA, jrB = strings.TrimSpace(jrA), strings.TrimSpace(jrB)
	if jrA == jrB {
		metrics["junior_detected"] = true
	}

	srA, srB := metrickit.ReplaceBoth(subA, subB, "SR", "")
	srA, srB = strings.TrimSpace(srA), strings.TrimSpace(srB)
	if srA == srB {
		metrics["senior_detected"] = true
	}

	return Result{Equal: false, Metrics: metrics}
}

// GivenNameCheck compares two given names, adding a prefix-match
// slice_weight on top of the family-name-style trim/alpha checks.
func GivenNameCheck(a, b string, sliceMin int) Result {
	if a == b {
		return Result{Equal: true, Metrics: map[string]interface{}{"equal": true}}
	}
	metrics := metricsMap(metrickit.PairwiseStringMetrics(a, b))

	trimA, trimB := metrickit.TrimBoth(a, b)
	if trimA == trimB {
		metrics["trim_result"] = trimA
	}

	sliceOK, sliceWeight := SliceStringCheck(a, b, sliceMin)
	if sliceOK {
		metrics["slice_weight"] = sliceWeight
	}

	alphaEqual, subA, _ := AlphaCompositeNameCheck(a, b)
	if alphaEqual {
		metrics["sub_result"] = subA
	}

	return Result{Equal: false, Metrics: metrics}
}

// MiddleNameCheck treats either input being blank as a dedicated (non-match)
// case, distinct from an ordinary inequality.
func MiddleNameCheck(a, b string) Result {
	if len(a) == 0 || len(b) == 0 {
		return Result{Equal: false, Metrics: map[string]interface{}{"blank": true}}
	}
	if a == b {
		return Result{Equal: true, Metrics: map[string]interface{}{"equal": true}}
	}
	metrics := metricsMap(metrickit.PairwiseStringMetrics(a, b))

	trimA, trimB := metrickit.TrimBoth(a, b)
	if trimA == trimB {
		metrics["trim_result"] = trimA
	}
	if a[:1] == b[:1] {
		metrics["initial_result"] = true
	}

	return Result{Equal: false, Metrics: metrics}
}

// AddressCheck treats either input being blank as a dedicated case, and
// otherwise adds a prefix-match slice_weight.
func AddressCheck(a, b string, sliceMin int) Result {
	if len(a) == 0 || len(b) == 0 {
		return Result{Equal: false, Metrics: map[string]interface{}{"address_blank": true}}
	}
	if a == b {
		return Result{Equal: true, Metrics: map[string]interface{}{"equal": true}}
	}
	metrics := metricsMap(metrickit.PairwiseStringMetrics(a, b))

	sliceOK, sliceWeight := SliceStringCheck(a, b, sliceMin)
	if sliceOK {
		metrics["slice_weight"] = sliceWeight
	}

	return Result{Equal: false, Metrics: metrics}
}

// PostalCheck treats either input being blank as a dedicated case.
func PostalCheck(a, b string) Result {
	if len(a) == 0 || len(b) == 0 {
		return Result{Equal: false, Metrics: map[string]interface{}{"postal_blank": true}}
	}
	if a == b {
		return Result{Equal: true, Metrics: map[string]interface{}{"equal": true}}
	}
	return Result{Equal: false, Metrics: metricsMap(metrickit.PairwiseStringMetrics(a, b))}
}

func metricsMap(m metrickit.Metrics) map[string]interface{} {
	return map[string]interface{}{
		"damerau_levenshtein_distance": m.DamerauLevenshteinDist,
		"equal":                        m.Equal,
		"hamming_distance":             m.HammingDist,
		"jaro_winkler":                 m.JaroWinkler,
		"levenshtein_distance":         m.LevenshteinDist,
		"metaphone":                    m.Metaphone,
		"ratio":                        m.Ratio,
		"strings":                      [2]string{m.A, m.B},
	}
}

// NameComparison is the result of WrapNameCheck.
type NameComparison struct {
	FamilyName bool                              `json:"family_name"`
	GivenName  bool                              `json:"given_name"`
	MiddleName bool                              `json:"middle_name"`
	Metrics    map[string]map[string]interface{} `json:"metrics"`
}

// NameFields is the subset of a record's fields WrapNameCheck needs.
type NameFields struct {
	GivenName  string
	MiddleName string
	FamilyName string
}

// WrapNameCheck runs the three name comparators for a pair of records and
// assembles the combined result.
func WrapNameCheck(a, b NameFields, sliceMin int) NameComparison {
	fam := FamilyNameCheck(a.FamilyName, b.FamilyName)
	given := GivenNameCheck(a.GivenName, b.GivenName, sliceMin)
	mid := MiddleNameCheck(a.MiddleName, b.MiddleName)

	return NameComparison{
		FamilyName: fam.Equal,
		GivenName:  given.Equal,
		MiddleName: mid.Equal,
		Metrics: map[string]map[string]interface{}{
			"family_name": fam.Metrics,
			"given_name":  given.Metrics,
			"middle_name": mid.Metrics,
		},
	}
}

// AddressComparison is the result of WrapAddressCheck.
type AddressComparison struct {
	Address1   bool                              `json:"address_1"`
	Address2   bool                              `json:"address_2"`
	PostalCode bool                              `json:"postal_code"`
	Metrics    map[string]map[string]interface{} `json:"metrics"`
}

// AddressFields is the subset of a record's fields WrapAddressCheck needs.
type AddressFields struct {
	Address1   string
	Address2   string
	PostalCode string
}

// WrapAddressCheck runs the three address/postal comparators for a pair of
// records and assembles the combined result.
func WrapAddressCheck(a, b AddressFields, sliceMin int) AddressComparison {
	postal := PostalCheck(a.PostalCode, b.PostalCode)
	addr1 := AddressCheck(a.Address1, b.Address1, sliceMin)
	addr2 := AddressCheck(a.Address2, b.Address2, sliceMin)

	return AddressComparison{
		Address1:   addr1.Equal,
		Address2:   addr2.Equal,
		PostalCode: postal.Equal,
		Metrics: map[string]map[string]interface{}{
			"address_1":   addr1.Metrics,
			"address_2":   addr2.Metrics,
			"postal_code": postal.Metrics,
		},
	}
}
