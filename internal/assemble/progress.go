package assemble

// ComputePercent converts completed units of work into a display
// percentage. Values are clamped to 1..99 so a job in flight never shows
// 0 (looks dead) or 100 (looks done before upload).
func ComputePercent(completed, total int) int {
	if total <= 0 {
		return startingPercent
	}
	percent := completed * 100 / total
	if percent < 1 {
		return 1
	}
	if percent > 99 {
		return 99
	}
	return percent
}

// EstimateETASeconds projects remaining time from elapsed runtime and
// current progress, assuming a roughly constant pace. Progress at or
// below zero yields no estimate; the result never goes negative.
func EstimateETASeconds(elapsedSeconds, percent int) int {
	if percent <= 0 || elapsedSeconds < 0 {
		return 0
	}
	if percent >= 100 {
		return 0
	}
	eta := elapsedSeconds * (100 - percent) / percent
	if eta < 0 {
		return 0
	}
	return eta
}
