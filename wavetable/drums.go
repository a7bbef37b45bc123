package wavetable

import (
	"math"
	"math/rand"

	"github.com/chewxy/math32"
)

// General MIDI percussion key numbers covered by the built-in kit.
const (
	KeyAcousticBassDrum = 35
	KeyKick             = 36
	KeySideStick        = 37
	KeySnare            = 38
	KeyHandClap         = 39
	KeyElectricSnare    = 40
	KeyClosedHiHat      = 42
	KeyPedalHiHat       = 44
	KeyOpenHiHat        = 46
	KeyCrashCymbal      = 49
	KeyRideCymbal       = 51
)

const (
	drumTargetRMS  = 0.3
	drumTargetPeak = 0.8
)

// DrumKit builds the procedural GS drum kit. Toms are aliased to the
// kick; keys without a generator are left empty. Drum samples are played
// back without pitch shifting, keyed by note number.
func DrumKit(sampleRate int) *Set {
	count := sampleRate * 2
	kick := Kick(sampleRate, count)
	samples := map[byte]*Sample{
		KeyAcousticBassDrum: drumSample(sampleRate, KeyAcousticBassDrum, AcousticBassDrum(sampleRate, count)),
		KeyKick:             drumSample(sampleRate, KeyKick, kick),
		KeySideStick:        drumSample(sampleRate, KeySideStick, SideStick(sampleRate, count/2)),
		KeySnare:            drumSample(sampleRate, KeySnare, Snare(sampleRate, count)),
		KeyHandClap:         drumSample(sampleRate, KeyHandClap, HandClap(sampleRate, count/2)),
		KeyElectricSnare:    drumSample(sampleRate, KeyElectricSnare, ElectricSnare(sampleRate, count)),
		KeyClosedHiHat:      drumSample(sampleRate, KeyClosedHiHat, HiHat(sampleRate, count/2)),
		KeyPedalHiHat:       drumSample(sampleRate, KeyPedalHiHat, PedalHiHat(sampleRate, count/2)),
		KeyOpenHiHat:        drumSample(sampleRate, KeyOpenHiHat, HiHat(sampleRate, count)),
		KeyCrashCymbal:      drumSample(sampleRate, KeyCrashCymbal, CrashCymbal(sampleRate, count*2)),
		KeyRideCymbal:       drumSample(sampleRate, KeyRideCymbal, RideCymbal(sampleRate, count*3)),
	}
	for _, tom := range []byte{41, 43, 45, 47, 48, 50} {
		samples[tom] = drumSample(sampleRate, tom, kick)
	}
	return NewSet(samples)
}

func drumSample(sampleRate int, key byte, data []float32) *Sample {
	return &Sample{Rate: sampleRate, Root: key, Data: data}
}

func drumRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// adsr is a linear attack/decay/sustain/release envelope over a tone of
// the given total duration, all times in seconds.
func adsr(t, attack, decay, sustain, release, duration float32) float32 {
	switch {
	case t < attack:
		return t / attack
	case t < attack+decay:
		return 1 - (1-sustain)*((t-attack)/decay)
	case t < duration-release:
		return sustain
	case t < duration:
		return sustain * (1 - (t-(duration-release))/release)
	}
	return 0
}

// filteredNoise is white noise ring-modulated with a random frequency
// from the given band, a cheap stand-in for band-limited noise.
func filteredNoise(rng *rand.Rand, lowFreq, highFreq, t float32) float32 {
	white := rng.Float32()*2 - 1
	freq := lowFreq + (highFreq-lowFreq)*rng.Float32()
	return white * math32.Sin(2*math.Pi*freq*t)
}

// normalize scales the buffer so its RMS and peak levels hit the shared
// drum targets, whichever is the stricter constraint.
func normalize(samples []float32) {
	if len(samples) == 0 {
		return
	}
	var sum, peak float32
	for _, x := range samples {
		sum += x * x
		if a := math32.Abs(x); a > peak {
			peak = a
		}
	}
	rms := math32.Sqrt(sum / float32(len(samples)))
	if rms <= 0 || peak <= 0 {
		return
	}
	scale := min(drumTargetRMS/rms, drumTargetPeak/peak)
	for i := range samples {
		samples[i] *= scale
	}
}

// trimSilence drops the trailing part of the buffer below the silence
// threshold, keeping at least 10 ms.
func trimSilence(samples []float32, sampleRate int) []float32 {
	const threshold = 50.0 / 32767
	end := 0
	for i := len(samples) - 1; i >= 0; i-- {
		if math32.Abs(samples[i]) > threshold {
			end = i + 1
			break
		}
	}
	if minLen := sampleRate / 100; end < minLen {
		end = min(minLen, len(samples))
	}
	return samples[:end]
}

func Kick(sampleRate, count int) []float32 {
	rng := drumRand(KeyKick)
	data := make([]float32, count)
	const fundamental, overtone = 35, 80
	for i := range data {
		t := float32(i) / float32(sampleRate)
		bend := math32.Exp(-15 * t)
		curFundamental := fundamental * (1 + 2*bend)
		mainEnv := math32.Exp(-8 * t)
		s := math32.Sin(2*math.Pi*curFundamental*t)*mainEnv*0.8 +
			math32.Sin(2*math.Pi*curFundamental*0.5*t)*math32.Exp(-3*t)*0.4 +
			math32.Sin(2*math.Pi*overtone*t)*mainEnv*0.2 +
			filteredNoise(rng, 2000, 5000, t)*math32.Exp(-80*t)*0.3
		mod := math32.Sin(2*math.Pi*8*t) * 0.1 * mainEnv
		data[i] = math32.Tanh(s * (1 + mod))
	}
	normalize(data)
	return data
}

func AcousticBassDrum(sampleRate, count int) []float32 {
	rng := drumRand(KeyAcousticBassDrum)
	data := make([]float32, count)
	const fundamental, overtone = 40, 90
	for i := range data {
		t := float32(i) / float32(sampleRate)
		bend := math32.Exp(-10 * t)
		curFundamental := fundamental * (1 + 1.5*bend)
		mainEnv := math32.Exp(-6 * t)
		s := math32.Sin(2*math.Pi*curFundamental*t)*mainEnv*0.9 +
			math32.Sin(2*math.Pi*curFundamental*0.5*t)*math32.Exp(-2*t)*0.5 +
			math32.Sin(2*math.Pi*overtone*t)*mainEnv*0.3 +
			filteredNoise(rng, 1500, 4000, t)*math32.Exp(-60*t)*0.2
		mod := math32.Sin(2*math.Pi*6*t) * 0.05 * mainEnv
		data[i] = math32.Tanh(s * (1 + mod))
	}
	normalize(data)
	return data
}

func Snare(sampleRate, count int) []float32 {
	rng := drumRand(KeySnare)
	data := make([]float32, count)
	duration := float32(count) / float32(sampleRate)
	for i := range data {
		t := float32(i) / float32(sampleRate)
		env := adsr(t, 0.001, 0.05, 0.3, 0.1, duration)
		var buzz float32
		for j := 0; j < 8; j++ {
			freq := 150 + rng.Float32()*250
			buzz += math32.Sin(2*math.Pi*freq*t) * (0.5 + rng.Float32()*0.5)
		}
		s := math32.Sin(2*math.Pi*200*t)*env*0.4 +
			buzz/8*env*0.6 +
			filteredNoise(rng, 2000, 8000, t)*math32.Exp(-25*t)*0.4 +
			math32.Sin(2*math.Pi*1200*t)*math32.Exp(-40*t)*0.2 +
			math32.Sin(2*math.Pi*250*t)*env*0.1
		data[i] = math32.Tanh(s)
	}
	normalize(data)
	return data
}

func ElectricSnare(sampleRate, count int) []float32 {
	rng := drumRand(KeyElectricSnare)
	data := make([]float32, count)
	duration := float32(count) / float32(sampleRate)
	for i := range data {
		t := float32(i) / float32(sampleRate)
		env := adsr(t, 0.001, 0.08, 0.2, 0.1, duration)
		s := math32.Sin(2*math.Pi*180*t)*env*0.5 +
			filteredNoise(rng, 500, 5000, t)*env*0.7 +
			filteredNoise(rng, 4000, 10000, t)*math32.Exp(-30*t)*0.6
		data[i] = math32.Tanh(s)
	}
	normalize(data)
	return data
}

func SideStick(sampleRate, count int) []float32 {
	rng := drumRand(KeySideStick)
	data := make([]float32, count)
	duration := float32(count) / float32(sampleRate)
	for i := range data {
		t := float32(i) / float32(sampleRate)
		env := adsr(t, 0.001, 0.02, 0, 0.05, duration)
		s := filteredNoise(rng, 3000, 8000, t)*math32.Exp(-100*t)*0.8 +
			math32.Sin(2*math.Pi*800*t)*math32.Exp(-50*t)*0.4 +
			math32.Sin(2*math.Pi*150*t)*math32.Exp(-30*t)*0.2
		data[i] = math32.Tanh(s * env)
	}
	normalize(data)
	return data
}

var hihatFreqs = [...]float32{300, 450, 680, 920, 1200, 1600}

func HiHat(sampleRate, count int) []float32 {
	rng := drumRand(KeyClosedHiHat)
	data := make([]float32, count)
	for i := range data {
		t := float32(i) / float32(sampleRate)
		env := math32.Exp(-20 * t)
		var s float32
		for idx, freq := range hihatFreqs {
			partialEnv := math32.Exp(-(10 + float32(idx)*3) * t)
			mod := 1 + 0.1*math32.Sin(2*math.Pi*30*t)
			s += math32.Sin(2*math.Pi*freq*mod*t) * partialEnv / float32(idx+1)
		}
		sizzle := filteredNoise(rng, 6000, 12000, t) * env * 0.3
		attack := filteredNoise(rng, 8000, 15000, t) * math32.Exp(-100*t) * 0.4
		data[i] = (s*0.6 + sizzle + attack) * env
	}
	normalize(data)
	return data
}

var pedalHihatFreqs = [...]float32{200, 300, 450, 600, 800}

func PedalHiHat(sampleRate, count int) []float32 {
	rng := drumRand(KeyPedalHiHat)
	data := make([]float32, count)
	for i := range data {
		t := float32(i) / float32(sampleRate)
		env := math32.Exp(-30 * t)
		var s float32
		for idx, freq := range pedalHihatFreqs {
			partialEnv := math32.Exp(-(15 + float32(idx)*5) * t)
			s += math32.Sin(2*math.Pi*freq*t) * partialEnv / float32(idx+1)
		}
		click := filteredNoise(rng, 1000, 5000, t) * math32.Exp(-80*t) * 0.4
		data[i] = (s*0.7 + click) * env
	}
	normalize(data)
	return data
}

var crashFreqs = [...]float32{300, 500, 800, 1200, 1800, 2500}

func CrashCymbal(sampleRate, count int) []float32 {
	rng := drumRand(KeyCrashCymbal)
	data := make([]float32, count)
	for i := range data {
		t := float32(i) / float32(sampleRate)
		var s float32
		for idx, freq := range crashFreqs {
			env := math32.Exp(-(2 + float32(idx)*0.5) * t)
			s += math32.Sin(2*math.Pi*freq*t) * env / float32(idx+1)
		}
		sizzle := filteredNoise(rng, 5000, 20000, t) * math32.Exp(-2.5*t) * 0.5
		data[i] = math32.Tanh(s*0.6 + sizzle)
	}
	normalize(data)
	return data
}

func RideCymbal(sampleRate, count int) []float32 {
	rng := drumRand(KeyRideCymbal)
	data := make([]float32, count)
	const bellFreq, bodyFreq = 2000, 400
	for i := range data {
		t := float32(i) / float32(sampleRate)
		bellEnv := math32.Exp(-8*t) + math32.Exp(-t)*0.3
		var body float32
		for harmonic := 1; harmonic <= 5; harmonic++ {
			freq := bodyFreq * float32(harmonic) * (1 + 0.1*rng.Float32())
			body += math32.Sin(2*math.Pi*freq*t) / float32(harmonic)
		}
		s := math32.Sin(2*math.Pi*bellFreq*t)*bellEnv*0.5 +
			math32.Sin(2*math.Pi*bellFreq*1.5*t)*bellEnv*0.2 +
			body*math32.Exp(-4*t)*0.3 +
			filteredNoise(rng, 3000, 8000, t)*math32.Exp(-30*t)*0.2
		data[i] = clampUnit(s)
	}
	return trimSilence(data, sampleRate)
}

// clapHits are the micro-onsets of a hand clap: start time, intensity
// and decay rate of each palm strike.
var clapHits = [...]struct{ at, intensity, decay float32 }{
	{0, 1, 0.8}, {0.002, 0.85, 0.7}, {0.005, 0.9, 0.75},
	{0.008, 0.7, 0.6}, {0.012, 0.8, 0.65}, {0.016, 0.6, 0.5},
}

func HandClap(sampleRate, count int) []float32 {
	rng := drumRand(KeyHandClap)
	data := make([]float32, count)
	for i := range data {
		t := float32(i) / float32(sampleRate)
		var s float32
		for _, hit := range clapHits {
			if t < hit.at {
				continue
			}
			ct := t - hit.at
			env := math32.Exp(-30 * hit.decay * ct)
			component := filteredNoise(rng, 2000, 8000, ct)*math32.Exp(-150*ct)*0.6 +
				filteredNoise(rng, 800, 2500, ct)*env*0.7 +
				filteredNoise(rng, 200, 600, ct)*math32.Exp(-8*ct)*0.3 +
				math32.Sin(2*math.Pi*1200*ct)*math32.Exp(-60*ct)*0.4 +
				filteredNoise(rng, 3000, 6000, ct)*math32.Exp(-80*ct)*0.5
			component *= 1 + (rng.Float32()-0.5)*0.1
			s += component * hit.intensity * (0.9 + rng.Float32()*0.2)
		}
		data[i] = math32.Tanh(s) * 0.8
	}
	return trimSilence(data, sampleRate)
}
