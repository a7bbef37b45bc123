package wavetable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFrequency(t *testing.T) {
	assert.InDelta(t, 440.0, KeyFrequency(69), 1e-3)
	assert.InDelta(t, 880.0, KeyFrequency(81), 1e-2)
	assert.InDelta(t, 261.63, KeyFrequency(60), 1e-1)
}

func TestPianoToneDeterministic(t *testing.T) {
	a := PianoTone(8000, 440, 400)
	b := PianoTone(8000, 440, 400)
	require.Equal(t, a, b, "same frequency must generate the same tone")
	c := PianoTone(8000, 220, 400)
	assert.NotEqual(t, a, c, "different frequencies must differ")
}

func TestPianoToneBounded(t *testing.T) {
	for _, freq := range []float32{27.5, 261.63, 440, 4186} {
		tone := PianoTone(8000, freq, 800)
		energy := float32(0)
		for i, v := range tone {
			require.LessOrEqualf(t, v, float32(1), "freq %v sample %d", freq, i)
			require.GreaterOrEqualf(t, v, float32(-1), "freq %v sample %d", freq, i)
			energy += v * v
		}
		assert.Greater(t, energy, float32(0), "tone at %v Hz is silent", freq)
	}
}

func TestPianoSetCoversAllKeys(t *testing.T) {
	set := pianoSet(8000, 0.05)
	require.Equal(t, 128, set.Len())
	for key := byte(0); key < 128; key++ {
		sample := set.Sample(key)
		require.NotNilf(t, sample, "key %d", key)
		assert.Equal(t, key, sample.Root)
		assert.Equal(t, 8000, sample.Rate)
		assert.NotEmpty(t, sample.Data)
	}
}

func TestDrumKitKeys(t *testing.T) {
	kit := DrumKit(8000)
	keys := []byte{
		KeyAcousticBassDrum, KeyKick, KeySideStick, KeySnare, KeyHandClap,
		KeyElectricSnare, KeyClosedHiHat, KeyPedalHiHat, KeyOpenHiHat,
		KeyCrashCymbal, KeyRideCymbal,
		41, 43, 45, 47, 48, 50, // toms
	}
	for _, key := range keys {
		sample := kit.Sample(key)
		require.NotNilf(t, sample, "key %d", key)
		require.NotEmptyf(t, sample.Data, "key %d", key)
		for i, v := range sample.Data {
			require.LessOrEqualf(t, v, float32(1), "key %d sample %d", key, i)
			require.GreaterOrEqualf(t, v, float32(-1), "key %d sample %d", key, i)
		}
	}
	assert.Nil(t, kit.Sample(60), "melodic keys have no drum sample")
}

func TestDrumGeneratorsDeterministic(t *testing.T) {
	assert.Equal(t, Kick(8000, 4000), Kick(8000, 4000))
	assert.Equal(t, Snare(8000, 4000), Snare(8000, 4000))
	assert.Equal(t, HiHat(8000, 2000), HiHat(8000, 2000))
}

func TestSampleSeconds(t *testing.T) {
	s := &Sample{Rate: 8000, Data: make([]float32, 4000)}
	assert.InDelta(t, 0.5, s.Seconds(), 1e-9)
	empty := &Sample{}
	assert.Zero(t, empty.Seconds())
}

func writeTestWav(t *testing.T, path string, rate int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	})
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestLoadSet(t *testing.T) {
	dir := t.TempDir()
	writeTestWav(t, filepath.Join(dir, "60.wav"), 8000, []int{16384, -16384, 0, 8192})
	writeTestWav(t, filepath.Join(dir, "61.wav"), 8000, []int{32767, 0})
	set, err := LoadSet(dir, "{key}.wav")
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	sample := set.Sample(60)
	require.NotNil(t, sample)
	assert.Equal(t, 8000, sample.Rate)
	assert.Equal(t, byte(60), sample.Root)
	require.Len(t, sample.Data, 4)
	assert.InDelta(t, 0.5, sample.Data[0], 1e-4)
	assert.InDelta(t, -0.5, sample.Data[1], 1e-4)
	assert.InDelta(t, 0, sample.Data[2], 1e-4)
	assert.InDelta(t, 0.25, sample.Data[3], 1e-4)

	assert.Nil(t, set.Sample(62))
}

func TestLoadSetEmptyFolder(t *testing.T) {
	_, err := LoadSet(t.TempDir(), "{key}.wav")
	assert.Error(t, err, "a folder without any matching samples is an error")
}
