package domain

import (
	"regexp"
	"strings"
)

// priceRe matches the leading numeric run of a Korean ticket price string,
// with optional thousands separators: "50,000원", "30000원~", "15,000".
var priceRe = regexp.MustCompile(`^(\d{1,3}(?:,\d{3})+|\d+)`)

// ParsePrice extracts the amount in won from a display price string.
// Free or otherwise non-numeric prices ("무료", "전석 초청") yield 0.
func ParsePrice(s string) int64 {
	s = strings.TrimSpace(s)

	m := priceRe.FindString(s)
	if m == "" {
		return 0
	}

	var n int64
	for _, r := range m {
		if r == ',' {
			continue
		}
		n = n*10 + int64(r-'0')
	}

	return n
}

// DiscountedPrice applies an integer percentage discount, rounding down.
func DiscountedPrice(original int64, rate int) int64 {
	if original <= 0 || rate <= 0 {
		return original
	}
	if rate >= 100 {
		return 0
	}
	return original * int64(100-rate) / 100
}

// ProgressPercent is the recruiting progress clamped to 100. It is derived
// on every read and never treated as authoritative state.
func ProgressPercent(current, target int) int {
	if target <= 0 {
		return 0
	}
	p := current * 100 / target
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// Derive fills the computed fields of a campaign from its stored ones.
func (g *GroupPurchase) Derive() {
	g.Progress = ProgressPercent(g.CurrentParticipants, g.TargetParticipants)
	g.DiscountedPrice = DiscountedPrice(g.OriginalPrice, g.DiscountRate)
}
