package sampler_test

import (
	"testing"

	"github.com/mkarjala/kaiku"
	"github.com/mkarjala/kaiku/sampler"
	"github.com/mkarjala/kaiku/wavetable"
)

func constantSample(rate int, root byte, length int, value float32) *wavetable.Sample {
	data := make([]float32, length)
	for i := range data {
		data[i] = value
	}
	return &wavetable.Sample{Rate: rate, Root: root, Data: data}
}

func testFactory() *sampler.Factory {
	return &sampler.Factory{
		Melodic: wavetable.NewSet(map[byte]*wavetable.Sample{
			60: constantSample(48000, 60, 48000, 1),
			72: constantSample(48000, 72, 48000, 1),
		}),
		Drums: wavetable.NewSet(map[byte]*wavetable.Sample{
			36: constantSample(48000, 36, 48000, 1),
		}),
	}
}

func testEngine(t *testing.T, cfg kaiku.EngineConfig) kaiku.Engine {
	t.Helper()
	e, err := testFactory().Engine(cfg)
	if err != nil {
		t.Fatalf("error constructing engine: %v", err)
	}
	return e
}

func TestFactoryValidation(t *testing.T) {
	factory := testFactory()
	tests := []struct {
		name string
		cfg  kaiku.EngineConfig
	}{
		{"zero sample rate", kaiku.EngineConfig{Channels: 2, MaxVoices: 4}},
		{"bad channels", kaiku.EngineConfig{SampleRate: 48000, Channels: 3, MaxVoices: 4}},
		{"zero voices", kaiku.EngineConfig{SampleRate: 48000, Channels: 2}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := factory.Engine(test.cfg); err == nil {
				t.Fatalf("expected an error for config %+v", test.cfg)
			}
		})
	}
	noMelodic := &sampler.Factory{}
	if _, err := noMelodic.Engine(kaiku.EngineConfig{SampleRate: 48000, Channels: 2, MaxVoices: 4}); err == nil {
		t.Fatal("expected an error when the factory has no melodic set")
	}
	noDrums := &sampler.Factory{Melodic: testFactory().Melodic}
	if _, err := noDrums.Engine(kaiku.EngineConfig{SampleRate: 48000, Channels: 2, MaxVoices: 4, PercussionKit: true}); err == nil {
		t.Fatal("expected an error when a percussion kit is requested without drums")
	}
}

func TestNoteLifecycle(t *testing.T) {
	e := testEngine(t, kaiku.EngineConfig{SampleRate: 48000, Channels: 1, MaxVoices: 4, FadeOutSamples: 16})
	buffer := make([]float32, 64)
	e.FillBuffer(buffer)
	for i, v := range buffer {
		if v != 0 {
			t.Fatalf("sample %d: got %v before any note, expected silence", i, v)
		}
	}
	e.QueueCommand(kaiku.NoteOn(0, 60, 127))
	if got := e.Polyphony(); got != 1 {
		t.Fatalf("got polyphony %d after note on, expected 1", got)
	}
	e.FillBuffer(buffer)
	if buffer[0] != 1 {
		t.Fatalf("got first sample %v at full velocity, expected 1", buffer[0])
	}
	e.QueueCommand(kaiku.NoteOff(0, 60))
	e.FillBuffer(buffer) // 64 frames, more than the 16 sample fade
	if got := e.Polyphony(); got != 0 {
		t.Fatalf("got polyphony %d after fade out, expected 0", got)
	}
	e.FillBuffer(buffer)
	for i, v := range buffer {
		if v != 0 {
			t.Fatalf("sample %d: got %v after fade out, expected silence", i, v)
		}
	}
}

func TestVelocityScalesAmplitude(t *testing.T) {
	e := testEngine(t, kaiku.EngineConfig{SampleRate: 48000, Channels: 1, MaxVoices: 4, FadeOutSamples: 16})
	buffer := make([]float32, 16)
	e.QueueCommand(kaiku.NoteOn(0, 60, 64))
	e.FillBuffer(buffer)
	expected := float32(64) / 127
	if buffer[0] != expected {
		t.Fatalf("got first sample %v at velocity 64, expected %v", buffer[0], expected)
	}
}

func TestChannelVolume(t *testing.T) {
	e := testEngine(t, kaiku.EngineConfig{SampleRate: 48000, Channels: 1, MaxVoices: 4, FadeOutSamples: 16})
	e.QueueCommand(kaiku.NewCommand(0xB0, 7, 0)) // channel volume to zero
	e.QueueCommand(kaiku.NoteOn(0, 60, 127))
	buffer := make([]float32, 16)
	e.FillBuffer(buffer)
	for i, v := range buffer {
		if v != 0 {
			t.Fatalf("sample %d: got %v with channel volume zero, expected silence", i, v)
		}
	}
}

func TestAllNotesOff(t *testing.T) {
	e := testEngine(t, kaiku.EngineConfig{SampleRate: 48000, Channels: 1, MaxVoices: 4, FadeOutSamples: 4})
	e.QueueCommand(kaiku.NoteOn(0, 60, 127))
	e.QueueCommand(kaiku.NoteOn(0, 72, 127))
	e.QueueCommand(kaiku.NewCommand(0xB0, 123, 0))
	buffer := make([]float32, 64)
	e.FillBuffer(buffer)
	if got := e.Polyphony(); got != 0 {
		t.Fatalf("got polyphony %d after all notes off, expected 0", got)
	}
}

func TestPercussionPlaysDrumSamples(t *testing.T) {
	e := testEngine(t, kaiku.EngineConfig{SampleRate: 48000, Channels: 1, MaxVoices: 4, FadeOutSamples: 16, PercussionKit: true})
	e.QueueCommand(kaiku.NoteOn(kaiku.PercussionChannel, 36, 127))
	if got := e.Polyphony(); got != 1 {
		t.Fatalf("got polyphony %d after drum hit, expected 1", got)
	}
	// an unmapped drum key plays nothing
	e.QueueCommand(kaiku.NoteOn(kaiku.PercussionChannel, 37, 127))
	if got := e.Polyphony(); got != 1 {
		t.Fatalf("got polyphony %d after unmapped drum key, expected 1", got)
	}
}

func TestVoiceStealingPrefersOldest(t *testing.T) {
	e := testEngine(t, kaiku.EngineConfig{SampleRate: 48000, Channels: 1, MaxVoices: 1, FadeOutSamples: 16})
	e.QueueCommand(kaiku.NoteOn(0, 60, 127))
	e.QueueCommand(kaiku.NoteOn(0, 72, 127))
	if got := e.Polyphony(); got != 1 {
		t.Fatalf("got polyphony %d with one voice, expected 1", got)
	}
	// the stolen voice now belongs to the new note; releasing the old
	// note must not touch it
	e.QueueCommand(kaiku.NoteOff(0, 60))
	buffer := make([]float32, 64)
	e.FillBuffer(buffer)
	if got := e.Polyphony(); got != 1 {
		t.Fatalf("got polyphony %d, expected the stolen voice to keep sounding", got)
	}
}

func TestStereoDuplicatesChannels(t *testing.T) {
	e := testEngine(t, kaiku.EngineConfig{SampleRate: 48000, Channels: 2, MaxVoices: 4, FadeOutSamples: 16})
	e.QueueCommand(kaiku.NoteOn(0, 60, 127))
	buffer := make([]float32, 32)
	e.FillBuffer(buffer)
	for i := 0; i < len(buffer); i += 2 {
		if buffer[i] != buffer[i+1] {
			t.Fatalf("frame %d: left %v differs from right %v", i/2, buffer[i], buffer[i+1])
		}
	}
}

func TestRenderLoadStaysInRange(t *testing.T) {
	e := testEngine(t, kaiku.EngineConfig{SampleRate: 48000, Channels: 2, MaxVoices: 16, FadeOutSamples: 16})
	e.QueueCommand(kaiku.NoteOn(0, 60, 127))
	buffer := make([]float32, 1024)
	for i := 0; i < 10; i++ {
		e.FillBuffer(buffer)
	}
	if load := e.RenderLoad(); load < 0 || load > 1 {
		t.Fatalf("got render load %v, expected it within [0, 1]", load)
	}
}
