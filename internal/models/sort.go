package models

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// SortStatuses orders statuses by category, then by asset name with digit
// runs compared numerically ("Truck 2" before "Truck 10").
func SortStatuses(list []AssetStatus) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Category != list[j].Category {
			return list[i].Category < list[j].Category
		}
		return NaturalLess(list[i].Name, list[j].Name)
	})
}

// NaturalLess compares a and b case-insensitively, treating runs of digits
// as numbers.
func NaturalLess(a, b string) bool {
	ca, cb := naturalChunks(a), naturalChunks(b)
	for k := 0; k < len(ca) && k < len(cb); k++ {
		x, y := ca[k], cb[k]
		xn, xerr := strconv.Atoi(x)
		yn, yerr := strconv.Atoi(y)
		switch {
		case xerr == nil && yerr == nil:
			if xn != yn {
				return xn < yn
			}
		case x != y:
			return x < y
		}
	}
	return len(ca) < len(cb)
}

func naturalChunks(s string) []string {
	var chunks []string
	var cur strings.Builder
	digit := false
	for i, r := range strings.ToLower(s) {
		d := unicode.IsDigit(r)
		if i > 0 && d != digit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		digit = d
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
