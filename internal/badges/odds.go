package badges

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	longShotThreshold = decimal.NewFromInt(5)
	moonshotThreshold = decimal.NewFromInt(10)
	one               = decimal.NewFromInt(1)
)

// Fractional prices are matched by string, not by value: "20/1" is a bigger
// price than any of these but does not qualify.
var (
	longShotFractions = map[string]bool{
		"9/2": true, "5/1": true, "11/2": true, "6/1": true, "13/2": true,
		"7/1": true, "15/2": true, "8/1": true, "9/1": true, "10/1": true,
	}
	moonshotFractions = map[string]bool{
		"10/1": true, "11/1": true, "12/1": true, "14/1": true, "16/1": true,
	}
)

func normalizeOdds(odds string) string {
	return strings.ReplaceAll(strings.TrimSpace(odds), " ", "")
}

func parseDecimal(odds string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(normalizeOdds(odds))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// IsLongShot reports whether a winning price earns the long shot badge
func IsLongShot(odds string) bool {
	if d, ok := parseDecimal(odds); ok {
		return d.GreaterThan(longShotThreshold)
	}
	return longShotFractions[normalizeOdds(odds)]
}

// IsMoonshot reports whether a winning price earns the moonshot badge
func IsMoonshot(odds string) bool {
	if d, ok := parseDecimal(odds); ok {
		return d.GreaterThan(moonshotThreshold)
	}
	return moonshotFractions[normalizeOdds(odds)]
}

// ValidOdds accepts decimal odds above 1.0 or a fraction a/b of positive integers
func ValidOdds(odds string) bool {
	odds = normalizeOdds(odds)
	if odds == "" {
		return false
	}
	if d, ok := parseDecimal(odds); ok {
		return d.GreaterThan(one)
	}
	num, den, ok := strings.Cut(odds, "/")
	if !ok {
		return false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return false
	}
	m, err := strconv.Atoi(den)
	return err == nil && m > 0
}
