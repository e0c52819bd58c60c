package accounting

import "math"

// Threshold is the drift tolerance for rebalancing. A position needs
// rebalancing when |actual-target| exceeds Absolute or |actual-target|/target
// exceeds Relative. A zero target with a non-zero actual always triggers.
type Threshold struct {
	Absolute float64 `json:"absolute"`
	Relative float64 `json:"relative"`
}

// DefaultThreshold is 5 percentage points absolute or 20% relative
var DefaultThreshold = Threshold{Absolute: 0.05, Relative: 0.20}

// NeedsRebalancing applies the threshold to fractional allocations
func (th Threshold) NeedsRebalancing(actual, target float64) bool {
	if target <= 0 {
		return actual > quantityEpsilon
	}
	deviation := math.Abs(actual - target)
	return deviation > th.Absolute || deviation/target > th.Relative
}
