// Package sampler implements kaiku.Engine as a wavetable sample player.
// Each engine owns a fixed array of voices; a note-on claims a voice and
// plays the key's sample at its native pitch, a note-off starts a linear
// fade-out over the configured fade-out length.
package sampler

import (
	"fmt"
	"math"
	"time"

	"github.com/mkarjala/kaiku"
	"github.com/mkarjala/kaiku/wavetable"
)

type (
	// Factory builds engines that share one melodic wavetable set and,
	// for the engine configured with PercussionKit, the drum set. Both
	// sets are immutable, so any number of engines can read them while
	// rendering in parallel.
	Factory struct {
		Melodic *wavetable.Set
		Drums   *wavetable.Set
	}

	Engine struct {
		sampleRate int
		channels   int
		fadeOut    int
		melodic    *wavetable.Set
		drums      *wavetable.Set
		voices     []voice
		chanVolume [16]float32
		chanBend   [16]float32 // semitones
		clock      uint64      // total frames rendered, used as voice age
		load       float32
	}

	voice struct {
		active  bool
		sustain bool
		drum    bool
		channel byte
		note    byte
		gain    float32
		fade    float32
		pos     float64
		step    float64
		started uint64
		sample  *wavetable.Sample
	}
)

func (f Factory) Engine(cfg kaiku.EngineConfig) (kaiku.Engine, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Channels < 1 || cfg.Channels > 2 {
		return nil, fmt.Errorf("channel count must be 1 or 2, got %d", cfg.Channels)
	}
	if cfg.MaxVoices < 1 {
		return nil, fmt.Errorf("voice count must be at least 1, got %d", cfg.MaxVoices)
	}
	if f.Melodic == nil {
		return nil, fmt.Errorf("factory has no melodic wavetable set")
	}
	e := &Engine{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		fadeOut:    max(cfg.FadeOutSamples, 1),
		melodic:    f.Melodic,
		voices:     make([]voice, cfg.MaxVoices),
	}
	if cfg.PercussionKit {
		if f.Drums == nil {
			return nil, fmt.Errorf("percussion kit requested but factory has no drum set")
		}
		e.drums = f.Drums
	}
	for i := range e.chanVolume {
		e.chanVolume[i] = 1
	}
	return e, nil
}

func (e *Engine) QueueCommand(cmd kaiku.Command) {
	switch cmd.StatusNibble() {
	case kaiku.StatusNoteOn:
		if cmd.Velocity() == 0 {
			e.release(cmd.Channel(), cmd.Note())
		} else {
			e.trigger(cmd)
		}
	case kaiku.StatusNoteOff:
		e.release(cmd.Channel(), cmd.Note())
	case kaiku.StatusControlChange:
		e.controlChange(cmd.Channel(), cmd.Note(), cmd.Velocity())
	case kaiku.StatusPitchBend:
		bend := int(cmd.Note()) | int(cmd.Velocity())<<7
		e.chanBend[cmd.Channel()] = float32(bend-8192) / 8192 * 2
	}
	// program change and pressure commands are accepted and ignored
}

func (e *Engine) trigger(cmd kaiku.Command) {
	channel, note := cmd.Channel(), cmd.Note()
	drum := channel == kaiku.PercussionChannel && e.drums != nil
	var sample *wavetable.Sample
	if drum {
		sample = e.drums.Sample(note)
	} else {
		sample = e.melodic.Sample(note)
	}
	if sample == nil || len(sample.Data) == 0 {
		return
	}
	step := float64(sample.Rate) / float64(e.sampleRate)
	if !drum {
		step *= math.Pow(2, float64(int(note)-int(sample.Root))/12)
	}
	v := e.claimVoice()
	*v = voice{
		active:  true,
		sustain: true,
		drum:    drum,
		channel: channel,
		note:    note,
		gain:    float32(cmd.Velocity()) / 127,
		fade:    1,
		step:    step,
		started: e.clock,
		sample:  sample,
	}
}

// claimVoice picks the voice to (re)use: a silent one if any, otherwise
// the oldest released voice, otherwise the oldest sounding one.
func (e *Engine) claimVoice() *voice {
	best := 0
	bestReleased := !e.voices[0].sustain
	for i := 0; i < len(e.voices); i++ {
		v := &e.voices[i]
		if !v.active {
			return v
		}
		released := !v.sustain
		switch {
		case released && !bestReleased:
			best, bestReleased = i, true
		case released == bestReleased && v.started < e.voices[best].started:
			best = i
		}
	}
	return &e.voices[best]
}

// release marks the most recently triggered sounding voice of the key as
// released; its fade-out starts on the next buffer fill.
func (e *Engine) release(channel, note byte) {
	best := -1
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active || !v.sustain || v.channel != channel || v.note != note {
			continue
		}
		if best < 0 || v.started > e.voices[best].started {
			best = i
		}
	}
	if best >= 0 {
		e.voices[best].sustain = false
	}
}

func (e *Engine) controlChange(channel, controller, value byte) {
	switch controller {
	case 7: // channel volume
		e.chanVolume[channel] = float32(value) / 127
	case 120, 123: // all sound off, all notes off
		for i := range e.voices {
			if e.voices[i].channel == channel {
				e.voices[i].sustain = false
			}
		}
	}
}

func (e *Engine) FillBuffer(buffer []float32) {
	frames := len(buffer) / e.channels
	if frames == 0 {
		return
	}
	start := time.Now()
	clear(buffer)
	fadeStep := 1 / float32(e.fadeOut)
	for vi := range e.voices {
		v := &e.voices[vi]
		if !v.active {
			continue
		}
		step := v.step
		if !v.drum && e.chanBend[v.channel] != 0 {
			step *= math.Pow(2, float64(e.chanBend[v.channel])/12)
		}
		vol := v.gain * e.chanVolume[v.channel]
		data := v.sample.Data
		for f := 0; f < frames; f++ {
			idx := int(v.pos)
			if idx+1 >= len(data) {
				v.active = false
				break
			}
			if !v.sustain {
				v.fade -= fadeStep
				if v.fade <= 0 {
					v.active = false
					break
				}
			}
			frac := float32(v.pos - float64(idx))
			s := (data[idx] + (data[idx+1]-data[idx])*frac) * vol * v.fade
			base := f * e.channels
			for c := 0; c < e.channels; c++ {
				buffer[base+c] += s
			}
			v.pos += step
		}
	}
	e.clock += uint64(frames)
	e.updateLoad(time.Since(start), frames)
}

// updateLoad tracks how much of the buffer's wall-clock budget the
// render consumed, smoothed so single slow buffers do not spike the
// reading.
func (e *Engine) updateLoad(busy time.Duration, frames int) {
	budget := float64(frames) / float64(e.sampleRate)
	ratio := float32(busy.Seconds() / budget)
	if ratio > 1 {
		ratio = 1
	}
	e.load = e.load*0.8 + ratio*0.2
}

func (e *Engine) Polyphony() (n int) {
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return
}

func (e *Engine) MaxPolyphony() int { return len(e.voices) }

func (e *Engine) RenderLoad() float32 { return e.load }
