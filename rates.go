package camilladsp

// StandardRates are the common audio sample rates, ascending.
var StandardRates = []int{
	8000,
	11025,
	16000,
	22050,
	32000,
	44100,
	48000,
	88200,
	96000,
	176400,
	192000,
	352800,
	384000,
}

// NearestStandardRate maps a measured capture rate to the closest standard
// rate. On a tie the smaller rate wins. Rates more than 10% outside the
// standard range are not matched and return false.
func NearestStandardRate(raw int) (int, bool) {
	lowest, highest := StandardRates[0], StandardRates[len(StandardRates)-1]
	if 10*raw <= 9*lowest || 10*raw >= 11*highest {
		return 0, false
	}

	best := lowest
	bestDistance := distance(raw, best)
	for _, rate := range StandardRates[1:] {
		// Strictly closer only: rates ascend, so ties keep the smaller one.
		if d := distance(raw, rate); d < bestDistance {
			best, bestDistance = rate, d
		}
	}
	return best, true
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
