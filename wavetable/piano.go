package wavetable

import (
	"math"
	"math/rand"
	"sync"

	"github.com/chewxy/math32"
)

const pianoSeconds = 10

// KeyFrequency returns the equal temperament frequency of a MIDI key,
// with A4 (key 69) at 440 Hz.
func KeyFrequency(key byte) float32 {
	return 440 * math32.Pow(2, (float32(key)-69)/12)
}

// Piano builds a full 128-key set of procedurally generated piano tones.
// Generation is deterministic for a given sample rate; the keys are
// rendered in parallel as each tone is several seconds long.
func Piano(sampleRate int) *Set {
	return pianoSet(sampleRate, pianoSeconds)
}

func pianoSet(sampleRate int, seconds float64) *Set {
	count := int(float64(sampleRate) * seconds)
	var s Set
	var wg sync.WaitGroup
	for key := 0; key < 128; key++ {
		wg.Add(1)
		go func(key byte) {
			defer wg.Done()
			s.samples[key] = &Sample{
				Rate: sampleRate,
				Root: key,
				Data: PianoTone(sampleRate, KeyFrequency(key), count),
			}
		}(byte(key))
	}
	wg.Wait()
	return &s
}

// pianoPartial is one harmonic of the piano tone: a frequency multiplier
// of the fundamental and its relative amplitude.
type pianoPartial struct {
	mult, amp float32
}

// PianoTone generates a decaying harmonic-stack piano tone at the given
// fundamental frequency. Low notes get extra sub-harmonics, a longer
// hammer attack and soft saturation; very high partials are rolled off.
// The tone is deterministic: the random phases and hammer noise are
// seeded from the frequency.
func PianoTone(sampleRate int, freq float32, count int) []float32 {
	rng := rand.New(rand.NewSource(int64(math.Float32bits(freq))))

	partials := []pianoPartial{
		{1, 1}, {2.01, 0.5}, {3.02, 0.3}, {4.98, 0.2}, {6.1, 0.1},
	}
	if freq < 400 {
		partials = append(partials,
			pianoPartial{0.5, 0.4}, pianoPartial{7.03, 0.12},
			pianoPartial{8.97, 0.08}, pianoPartial{10.09, 0.06})
		if freq < 150 {
			partials = append(partials, pianoPartial{0.25, 0.15}, pianoPartial{1.5, 0.3})
		}
	}
	phases := make([]float32, len(partials))
	for i := range phases {
		phases[i] = rng.Float32() * 2 * math.Pi
	}

	const refLow, refHigh = 300, 20000
	scaling := float32(1)
	switch {
	case freq < 80:
		scaling = 2.5 + 1.5*(1-freq/80)
	case freq < 150:
		scaling = 1.8 + 0.7*(1-freq/150)
	case freq < refLow:
		scaling = 1.3 + 0.5*(1-freq/refLow)
	case freq > refHigh:
		scaling = math32.Exp(-(freq-refHigh)*0.0005) * 0.6
	}

	saturation := float32(0)
	switch {
	case freq < 200:
		saturation = 0.6 + 0.4*(1-freq/200)
	case freq < 500:
		saturation = 0.3 * (1 - (freq-200)/300)
	}

	attackTime := 0.005 + 0.01*min(refHigh/freq, 1)
	if freq < 150 {
		attackTime = 0.01 + 0.02*(1-freq/150)
	}
	decayFactor := 2 + min(freq/440, 1)
	if freq < refLow {
		decayFactor = 0.5 + 0.5*math32.Pow(freq/refLow, 0.8)
	}
	outputGain := float32(0.5)
	if freq < 200 {
		outputGain = 0.7
	}

	data := make([]float32, count)
	for i := range data {
		t := float32(i) / float32(sampleRate)

		attack := float32(1)
		if t < attackTime {
			attack = t / attackTime
		}
		envelope := attack * math32.Exp(-decayFactor*t)

		var sample float32
		for idx, p := range partials {
			pfreq := freq * p.mult
			attenuation := float32(1)
			if pfreq > refHigh {
				attenuation = math32.Exp(-0.002 * (pfreq - refHigh))
			}
			boost := float32(1)
			switch {
			case freq < 200 && p.mult < 1:
				boost = 2
			case freq < 200 && idx <= 3:
				boost = 1.6
			case freq < 300 && (idx <= 2 || p.mult < 1):
				boost = 1.3
			}
			partialDecay := math32.Exp(-t * (1 + float32(idx)*0.4))
			sample += math32.Sin(2*math.Pi*pfreq*t+phases[idx]) *
				p.amp * attenuation * partialDecay * boost / 2
		}

		// Hammer noise during the first few hundredths of a second.
		if t < 0.04 {
			smooth := (rng.Float32()*2 - 1 + rng.Float32()*2 - 1) * 0.5
			sample += smooth * 0.2 * math32.Exp(-60*t)
		}

		sample *= envelope * scaling
		if saturation > 0 {
			gain := 1 + saturation*2
			sample = math32.Tanh(sample*gain) / gain
			distorted := sample + sample*sample*sample*saturation*0.1
			sample = sample*(1-saturation*0.3) + distorted*saturation*0.3
		}
		data[i] = clampUnit(sample * outputGain)
	}
	return data
}

func clampUnit(x float32) float32 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
