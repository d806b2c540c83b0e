package audio

import "math"

// Pitch analysis parameters. The lag band corresponds to 60-400 Hz, the
// plausible range for human fundamental frequency.
const (
	PitchWindowSamples = 2048
	minPitchHz         = 60.0
	maxPitchHz         = 400.0
	silenceRMS         = 0.01
	peakThreshold      = 0.7
)

// EstimatePitch estimates the fundamental frequency (Hz) of a time-domain
// window using normalized autocorrelation. It returns false for silent
// windows (RMS below the gate) and for windows with no dominant periodicity.
//
// The scan walks lags from high frequency to low and accepts the first local
// peak whose correlation exceeds the threshold and then starts decreasing,
// which favors the fundamental over its harmonics.
func EstimatePitch(samples []int16, sampleRate int) (float64, bool) {
	if len(samples) == 0 || sampleRate <= 0 {
		return 0, false
	}

	// Normalize to [-1, 1] once; both the RMS gate and the correlation
	// operate on the float window.
	window := make([]float64, len(samples))
	var sumSq float64
	for i, s := range samples {
		f := float64(s) / 32768.0
		window[i] = f
		sumSq += f * f
	}
	rms := math.Sqrt(sumSq / float64(len(window)))
	if rms < silenceRMS {
		return 0, false
	}

	minLag := int(float64(sampleRate) / maxPitchHz)
	maxLag := int(float64(sampleRate) / minPitchHz)
	if maxLag >= len(window) {
		maxLag = len(window) - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return 0, false
	}

	bestLag := -1
	bestCorr := 0.0
	prevCorr := 0.0
	rising := false

	for lag := minLag; lag <= maxLag; lag++ {
		var corr, energy float64
		n := len(window) - lag
		for i := 0; i < n; i++ {
			corr += window[i] * window[i+lag]
			energy += window[i]*window[i] + window[i+lag]*window[i+lag]
		}
		if energy == 0 {
			continue
		}
		norm := 2 * corr / energy

		if norm > prevCorr {
			rising = true
		} else if rising && prevCorr > peakThreshold {
			// First local peak above threshold: the previous lag.
			bestLag = lag - 1
			bestCorr = prevCorr
			break
		} else {
			rising = false
		}
		prevCorr = norm
	}

	if bestLag < 0 || bestCorr < peakThreshold {
		return 0, false
	}
	return float64(sampleRate) / float64(bestLag), true
}
