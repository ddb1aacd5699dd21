package geocode

import (
	"regexp"
	"strings"
)

// MaxVariants bounds the number of provider calls per resolution.
const MaxVariants = 6

var (
	intersectionSepRe = regexp.MustCompile(`(?i)\s+and\s+`)
	houseNumberRe     = regexp.MustCompile(`^\d+\s+`)
)

// Variant is one candidate phrasing of a location sent to the provider.
type Variant struct {
	Query     string
	Precision Precision
}

// BuildVariants turns a raw location into an ordered, de-duplicated list of
// provider queries, most precise first. The provider is sensitive to street
// order in intersections, so both orders are tried before falling back to the
// first street alone.
func BuildVariants(raw string, region Region) []Variant {
	q := region.StripSuffix(Normalize(raw))
	if q == "" {
		return nil
	}

	var out []Variant
	add := func(query string, p Precision) {
		out = append(out, Variant{Query: region.WithSuffix(query), Precision: p})
	}

	if p1, p2, ok := splitIntersection(q); ok {
		add(p1+" & "+p2, PrecisionIntersection)
		add(p2+" & "+p1, PrecisionIntersection)

		p1Exp, p2Exp := ExpandAbbreviations(p1), ExpandAbbreviations(p2)
		if p1Exp != p1 || p2Exp != p2 {
			add(p1Exp+" & "+p2Exp, PrecisionIntersection)
		}

		add(p1, PrecisionApproximate)
		add(p1Exp, PrecisionApproximate)
	} else {
		add(q, PrecisionStreet)

		if exp := ExpandAbbreviations(q); exp != q {
			add(exp, PrecisionStreet)
		}

		// Without the house number the provider can still place the street.
		if streetOnly := houseNumberRe.ReplaceAllString(q, ""); streetOnly != q && streetOnly != "" {
			add(streetOnly, PrecisionApproximate)
		}
	}

	return dedupeVariants(out, MaxVariants)
}

// splitIntersection returns the first two non-empty parts around a standalone
// "and" token.
func splitIntersection(q string) (string, string, bool) {
	var parts []string
	for _, p := range intersectionSepRe.Split(q, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func dedupeVariants(in []Variant, limit int) []Variant {
	seen := make(map[string]bool, len(in))
	out := make([]Variant, 0, len(in))
	for _, v := range in {
		if seen[v.Query] {
			continue
		}
		seen[v.Query] = true
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}
