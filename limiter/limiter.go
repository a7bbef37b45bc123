// Package limiter implements a single-channel peak limiter with a fast
// attack and a smooth exponential release. The "lookahead" is a fast
// decaying peak hold feeding the gain computation, not a delay line: the
// limiter adds no latency to the signal.
package limiter

import (
	"fmt"

	"github.com/chewxy/math32"
)

type Limiter struct {
	threshold     float32 // linear amplitude
	releaseCoef   float32
	lookaheadCoef float32
	peakEnvelope  float32
	smoothedGain  float32
}

// epsilon keeps the gain division away from blowing up when the peak
// envelope has decayed to almost nothing.
const epsilon = 1e-10

// New creates a limiter for one audio channel. thresholdDB must be at
// most 0 (0 dBFS = full scale); releaseMS and lookaheadMS are time
// constants in milliseconds and must be positive.
func New(sampleRate, thresholdDB, releaseMS, lookaheadMS float32) (*Limiter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %v", sampleRate)
	}
	if thresholdDB > 0 {
		return nil, fmt.Errorf("threshold must be at most 0 dBFS, got %v", thresholdDB)
	}
	if releaseMS <= 0 {
		return nil, fmt.Errorf("release time must be positive, got %v ms", releaseMS)
	}
	if lookaheadMS <= 0 {
		return nil, fmt.Errorf("lookahead time must be positive, got %v ms", lookaheadMS)
	}
	return &Limiter{
		threshold:     math32.Pow(10, thresholdDB/20),
		releaseCoef:   math32.Exp(-1 / (releaseMS / 1000 * sampleRate)),
		lookaheadCoef: math32.Exp(-1 / (lookaheadMS / 1000 * sampleRate)),
		smoothedGain:  1,
	}, nil
}

// Process limits the buffer in place. The samples must all belong to this
// limiter's channel and be in their original order; the envelope state
// carries over between calls.
func (l *Limiter) Process(buffer []float32) {
	for i, x := range buffer {
		buffer[i] = l.processSample(x)
	}
}

// Gain returns the current smoothed gain, 1 meaning no attenuation.
func (l *Limiter) Gain() float32 { return l.smoothedGain }

// Threshold returns the limiting threshold as linear amplitude.
func (l *Limiter) Threshold() float32 { return l.threshold }

func (l *Limiter) processSample(x float32) float32 {
	abs := x
	if abs < 0 {
		abs = -abs
	}
	l.peakEnvelope *= l.lookaheadCoef
	if abs > l.peakEnvelope {
		l.peakEnvelope = abs
	}
	gain := float32(1)
	if l.peakEnvelope > l.threshold {
		gain = l.threshold / max(l.peakEnvelope, epsilon)
	}
	if gain < l.smoothedGain {
		l.smoothedGain = gain // fast attack, catches the transient within one sample
	} else {
		l.smoothedGain = l.releaseCoef*l.smoothedGain + (1-l.releaseCoef)*gain
	}
	return x * l.smoothedGain
}
