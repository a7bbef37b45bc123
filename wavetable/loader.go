package wavetable

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-audio/wav"
)

// LoadSet reads per-key WAV files from a directory. format names the
// files, with "{key}" standing for the MIDI key number, e.g.
// "{key}.wav" or "SAMPLE_{key}.wav". Missing keys are skipped; stereo
// files are reduced to their first channel. The files are decoded in
// parallel.
func LoadSet(dir, format string) (*Set, error) {
	var s Set
	var wg sync.WaitGroup
	for key := 0; key < 128; key++ {
		wg.Add(1)
		go func(key byte) {
			defer wg.Done()
			name := strings.ReplaceAll(format, "{key}", strconv.Itoa(int(key)))
			sample, err := loadSample(filepath.Join(dir, name), key)
			if err != nil {
				return // no file for this key
			}
			s.samples[key] = sample
		}(byte(key))
	}
	wg.Wait()
	if s.Len() == 0 {
		return nil, fmt.Errorf("no samples matching %q found in %v", format, dir)
	}
	return &s, nil
}

func loadSample(path string, key byte) (*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%v is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %v: %w", path, err)
	}
	floatBuf := buf.AsFloat32Buffer()
	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("%v has no channels", path)
	}
	// AsFloat32Buffer keeps integer PCM magnitudes, so scale to [-1, 1]
	// by the source bit depth.
	scale := float32(1)
	if dec.BitDepth >= 8 {
		scale = 1 / float32(int(1)<<(dec.BitDepth-1))
	}
	data := make([]float32, 0, len(floatBuf.Data)/channels)
	for i := 0; i < len(floatBuf.Data); i += channels {
		data = append(data, floatBuf.Data[i]*scale)
	}
	return &Sample{Rate: int(dec.SampleRate), Root: key, Data: data}, nil
}
