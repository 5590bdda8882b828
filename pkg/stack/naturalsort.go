package stack

import(
	"sort"
	"strings"
)

// NaturalLess orders strings the way people number files: runs of
// digits compare by their numeric value, so "img2" comes before
// "img10". Everything else compares byte by byte. Strings that only
// differ in leading zeros fall back to plain string order.
func NaturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			ei, ej := digitRun(a, i), digitRun(b, j)
			if c := compareNumbers(a[i:ei], b[j:ej]); c != 0 {
				return c < 0
			}
			i, j = ei, ej
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}

	if rest := (len(a)-i) - (len(b)-j); rest != 0 {
		return rest < 0
	}
	return a < b
}

// SortNatural sorts the strings in place, in NaturalLess order
func SortNatural(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return NaturalLess(s[i], s[j]) })
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func digitRun(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}

// compareNumbers compares two digit strings by value, without parsing
// them, so any length works.
func compareNumbers(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}
