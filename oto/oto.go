// Package oto adapts the oto/v3 playback library to the kaiku audio
// interfaces. Oto pulls samples from an io.Reader, so the sink pushes
// rendered buffers through a pipe.
package oto

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/mkarjala/kaiku"
)

type (
	Context struct {
		context  *oto.Context
		channels int
	}

	output struct {
		player    *oto.Player
		pipe      *io.PipeWriter
		tmpBuffer []byte
	}
)

// NewContext opens the system audio device for float32 playback.
func NewContext(sampleRate, channels int) (*Context, error) {
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{context: context, channels: channels}, nil
}

func (c *Context) Output() kaiku.AudioSink {
	pr, pw := io.NewPipe()
	player := c.context.NewPlayer(pr)
	player.Play()
	return &output{player: player, pipe: pw}
}

func (c *Context) Close() error {
	if err := c.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

func (o *output) WriteAudio(floatBuffer []float32) error {
	// reuse the old capacity of tmpBuffer by setting its length to
	// zero, saving it for the next call
	o.tmpBuffer = floatBufferToBytes(floatBuffer, o.tmpBuffer[:0])
	if _, err := o.pipe.Write(o.tmpBuffer); err != nil {
		return fmt.Errorf("cannot write to player: %w", err)
	}
	return nil
}

// Close waits for the queued audio to drain before releasing the
// player, so the tail of a render is not cut off.
func (o *output) Close() error {
	o.pipe.Close()
	for o.player.IsPlaying() && o.player.BufferedSize() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

func floatBufferToBytes(buffer []float32, data []byte) []byte {
	for _, v := range buffer {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
	}
	return data
}
