package expr

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// ParameterSite is one integer literal found in an expression's text.
// Start and End are byte offsets into the expression ([Start, End)).
// Literals embedded in identifiers ("close10") or adjacent to a
// decimal point are not sites.
type ParameterSite struct {
	Value int
	Start int
	End   int
}

// ExtractParameters scans an expression for tunable integer literals.
// Sites are returned in ascending offset order.
func ExtractParameters(expression string) []ParameterSite {
	var sites []ParameterSite

	for i := 0; i < len(expression); {
		c := expression[i]
		if c < '0' || c > '9' {
			i++
			continue
		}

		start := i
		for i < len(expression) && expression[i] >= '0' && expression[i] <= '9' {
			i++
		}
		end := i

		if start > 0 && isLiteralBoundary(expression[start-1]) {
			continue
		}
		if end < len(expression) && isLiteralBoundary(expression[end]) {
			continue
		}

		value, err := strconv.Atoi(expression[start:end])
		if err != nil {
			continue
		}
		sites = append(sites, ParameterSite{Value: value, Start: start, End: end})
	}

	return sites
}

// isLiteralBoundary reports whether an adjacent byte disqualifies a
// digit run from being a standalone integer literal. Identifier bytes
// mean the digits belong to a name; a dot means they belong to a
// float, whose integer part must not be rewritten in isolation.
func isLiteralBoundary(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// Substitute rewrites the expression with values[i] in place of
// sites[i]. Replacements are applied in descending offset order so a
// length change never invalidates the offsets still to be applied.
// sites and values must have equal length.
func Substitute(expression string, sites []ParameterSite, values []int) string {
	type sub struct {
		site  ParameterSite
		value int
	}
	subs := make([]sub, len(sites))
	for i := range sites {
		subs[i] = sub{site: sites[i], value: values[i]}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].site.Start > subs[j].site.Start })

	var b strings.Builder
	result := expression
	for _, s := range subs {
		b.Reset()
		b.WriteString(result[:s.site.Start])
		b.WriteString(strconv.Itoa(s.value))
		b.WriteString(result[s.site.End:])
		result = b.String()
	}
	return result
}

// VariationOptions bounds variant generation.
type VariationOptions struct {
	RangePercent  float64 // candidate window around each value, e.g. 0.5 = ±50%
	MinPerParam   int     // candidate count for small values (<= 20)
	MaxPerParam   int     // candidate count for larger values
	MaxVariations int     // hard cap on returned variants
}

// DefaultVariationOptions matches the standard mining profile.
func DefaultVariationOptions() VariationOptions {
	return VariationOptions{
		RangePercent:  0.5,
		MinPerParam:   3,
		MaxPerParam:   5,
		MaxVariations: 20,
	}
}

// GenerateVariations expands an expression into syntactic variants by
// substituting its integer literals with nearby candidate values. The
// unmodified input is always element zero and the result never exceeds
// opts.MaxVariations entries. When the full Cartesian product would be
// over budget, the parameter with the most candidates repeatedly loses
// its candidate farthest from the original value until the product
// fits or every parameter is down to two candidates.
func GenerateVariations(expression string, opts VariationOptions) []string {
	sites := ExtractParameters(expression)
	if len(sites) == 0 {
		return []string{expression}
	}

	candidates := make([][]int, len(sites))
	for i, site := range sites {
		candidates[i] = candidateValues(site.Value, opts)
	}

	shrinkToBudget(candidates, sites, opts.MaxVariations)

	variations := make([]string, 0, opts.MaxVariations)
	variations = append(variations, expression)

	// Iterative Cartesian product over an index vector.
	indices := make([]int, len(candidates))
	values := make([]int, len(candidates))
	for {
		allOriginal := true
		for i, idx := range indices {
			values[i] = candidates[i][idx]
			if values[i] != sites[i].Value {
				allOriginal = false
			}
		}
		if !allOriginal {
			if len(variations) >= opts.MaxVariations {
				return variations
			}
			variations = append(variations, Substitute(expression, sites, values))
		}

		// Advance the index vector, least-significant position last.
		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(candidates[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}

	return variations
}

// candidateValues returns a sorted candidate list for one literal,
// evenly spaced across [lower, upper] and always containing the
// original value.
func candidateValues(value int, opts VariationOptions) []int {
	lower := int(math.Floor(float64(value) * (1 - opts.RangePercent)))
	if lower < 1 {
		lower = 1
	}
	upper := int(math.Ceil(float64(value) * (1 + opts.RangePercent)))

	count := opts.MinPerParam
	if value > 20 {
		count = opts.MaxPerParam
	}
	if count < 2 {
		count = 2
	}

	var values []int
	if upper-lower >= count {
		step := (upper - lower) / (count - 1)
		if step < 1 {
			step = 1
		}
		for v := lower; v <= upper; v += step {
			values = append(values, v)
		}
	} else {
		for v := lower; v <= upper; v++ {
			values = append(values, v)
		}
	}

	if !containsInt(values, value) {
		values = append(values, value)
		sort.Ints(values)
	}
	return values
}

// shrinkToBudget trims candidate lists in place until the product of
// their lengths is within maxVariations or no list exceeds two
// entries. Each round removes, from the longest list, the candidate
// farthest from that parameter's original value.
func shrinkToBudget(candidates [][]int, sites []ParameterSite, maxVariations int) {
	for product(candidates) > maxVariations {
		longest := -1
		for i, values := range candidates {
			if len(values) > 2 && (longest < 0 || len(values) > len(candidates[longest])) {
				longest = i
			}
		}
		if longest < 0 {
			return
		}

		original := sites[longest].Value
		farthest := -1
		for i, v := range candidates[longest] {
			if v == original {
				continue
			}
			if farthest < 0 || abs(v-original) > abs(candidates[longest][farthest]-original) {
				farthest = i
			}
		}
		if farthest < 0 {
			return
		}
		candidates[longest] = append(candidates[longest][:farthest], candidates[longest][farthest+1:]...)
	}
}

// product multiplies list lengths, saturating well above any
// realistic variation budget to avoid overflow on many parameters.
func product(candidates [][]int) int {
	const saturated = 1 << 30
	p := 1
	for _, values := range candidates {
		p *= len(values)
		if p > saturated {
			return saturated
		}
	}
	return p
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
