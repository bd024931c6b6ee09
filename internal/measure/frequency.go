package measure

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ZeroCrossings returns the indices i at which the mean-centred signal rises
// through zero, i.e. sign(c[i+1]) - sign(c[i]) > 0. A sample sitting exactly
// on the mean has sign 0, so -1 -> 0 and 0 -> +1 both count.
func ZeroCrossings(samples []float64) []int {
	if len(samples) < 2 {
		return nil
	}

	mean := stat.Mean(samples, nil)

	var crossings []int
	prev := sign(samples[0] - mean)
	for i := 1; i < len(samples); i++ {
		cur := sign(samples[i] - mean)
		if cur-prev > 0 {
			crossings = append(crossings, i-1)
		}
		prev = cur
	}

	return crossings
}

// EstimateFrequency estimates the dominant frequency of samples from the
// average spacing of its rising zero crossings. It returns NaN when fewer
// than two crossings exist (flat signal, less than a period captured).
func EstimateFrequency(samples []float64, sampleRate float64) float64 {
	crossings := ZeroCrossings(samples)
	if len(crossings) < 2 {
		return math.NaN()
	}

	first, last := crossings[0], crossings[len(crossings)-1]
	pointsPerCycle := float64(last-first) / float64(len(crossings)-1)

	return sampleRate / pointsPerCycle
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
