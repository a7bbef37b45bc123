// Package wavetable provides the sample material the engines play:
// deterministic procedural piano and drum generators, and a loader for
// user-supplied per-key WAV files.
package wavetable

// Sample is one playable waveform, pitched at its root MIDI key.
type Sample struct {
	Rate int
	Root byte
	Data []float32
}

// Seconds returns the duration of the sample.
func (s *Sample) Seconds() float64 {
	if s.Rate == 0 {
		return 0
	}
	return float64(len(s.Data)) / float64(s.Rate)
}

// Set is an immutable MIDI key to sample mapping. It is built once and
// after that only read, so it is safe to share between any number of
// concurrently rendering engines without locking.
type Set struct {
	samples [128]*Sample
}

// NewSet copies the given mapping into a Set. Keys above 127 are ignored.
func NewSet(samples map[byte]*Sample) *Set {
	var s Set
	for key, sample := range samples {
		if key < 128 && sample != nil {
			s.samples[key] = sample
		}
	}
	return &s
}

// Sample returns the sample for a key, or nil if the key has none.
func (s *Set) Sample(key byte) *Sample {
	if key >= 128 {
		return nil
	}
	return s.samples[key]
}

// Len returns the number of keys that have a sample.
func (s *Set) Len() (n int) {
	for _, sample := range s.samples {
		if sample != nil {
			n++
		}
	}
	return
}
