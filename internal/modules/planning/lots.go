// Package planning implements the two-phase daily portfolio signal
// planner: exits are resolved first, then entries are sized against the
// cash and exposure projected after those exits.
package planning

import (
	"strings"
)

// ceilToLot rounds a share count up to the next multiple of lot.
func ceilToLot(raw, lot int64) int64 {
	if lot <= 1 {
		return raw
	}
	if raw <= 0 {
		return 0
	}
	return ((raw + lot - 1) / lot) * lot
}

// floorToLot rounds a share count down to a multiple of lot.
func floorToLot(raw, lot int64) int64 {
	if lot <= 1 {
		return raw
	}
	if raw <= 0 {
		return 0
	}
	return (raw / lot) * lot
}

// sellQuantity converts a sell fraction into a lot-quantized share count:
// the fractional share of held is rounded up to the next full lot, capped
// at the held quantity.
func sellQuantity(held int64, fraction float64, lot int64) int64 {
	if held <= 0 || fraction <= 0 {
		return 0
	}
	if fraction >= 1 {
		return held
	}
	raw := int64(float64(held) * fraction)
	if float64(held)*fraction > float64(raw) {
		raw++ // ceil of the fractional share
	}
	qty := ceilToLot(raw, lot)
	if qty > held {
		qty = held
	}
	return qty
}

// sellFraction resolves the sell fraction for a SELL verdict. Explicit
// numeric metadata wins; otherwise the action label is scanned for a
// 25/50/75 token; anything else means a full sell.
func sellFraction(action string, sellPercentage *float64) float64 {
	if sellPercentage != nil {
		f := *sellPercentage
		if f <= 0 || f > 1 {
			return 1.0
		}
		return f
	}

	switch {
	case strings.Contains(action, "25"):
		return 0.25
	case strings.Contains(action, "50"):
		return 0.50
	case strings.Contains(action, "75"):
		return 0.75
	}
	return 1.0
}
