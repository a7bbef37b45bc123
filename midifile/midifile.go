// Package midifile reads Standard MIDI Files into a single
// tempo-resolved event stream suitable for offline rendering. Events
// from all tracks are merged into absolute time order; only channel
// voice messages are kept as playable commands, but meta events still
// contribute to the stream duration.
package midifile

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/mkarjala/kaiku"
)

type (
	// Event is one point on the stream timeline. Delta is the time in
	// seconds since the previous event. Events that only mark time,
	// such as tempo changes or the end of a track, carry no command.
	Event struct {
		Delta  float64
		Cmd    kaiku.Command
		HasCmd bool
	}

	Stream struct {
		Events    []Event
		Duration  float64 // seconds from start to the last event
		NoteCount int     // note-ons with nonzero velocity
	}
)

// Read parses the SMF file at path into a merged stream.
func Read(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening midi file: %w", err)
	}
	defer f.Close()
	stream, err := ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("reading %v: %w", path, err)
	}
	return stream, nil
}

// ReadFrom parses SMF data from r into a merged stream.
func ReadFrom(r io.Reader) (*Stream, error) {
	type timedEvent struct {
		micros int64
		data   []byte
	}
	var events []timedEvent
	err := smf.ReadTracksFrom(r).Do(func(te smf.TrackEvent) {
		events = append(events, timedEvent{
			micros: te.AbsMicroSeconds,
			data:   te.Message.Bytes(),
		})
	}).Error()
	if err != nil {
		return nil, fmt.Errorf("parsing smf: %w", err)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].micros < events[j].micros
	})
	stream := &Stream{}
	var prev int64
	for _, te := range events {
		ev := Event{Delta: float64(te.micros-prev) / 1e6}
		prev = te.micros
		if cmd, ok := packCommand(te.data); ok {
			ev.Cmd = cmd
			ev.HasCmd = true
			if cmd.StatusNibble() == kaiku.StatusNoteOn && cmd.Velocity() > 0 {
				stream.NoteCount++
			}
		}
		stream.Events = append(stream.Events, ev)
		stream.Duration = float64(te.micros) / 1e6
	}
	return stream, nil
}

// packCommand converts a raw channel voice message into a packed
// command. Meta and system messages report false.
func packCommand(b []byte) (kaiku.Command, bool) {
	if len(b) == 0 || b[0] < 0x80 || b[0] >= 0xF0 {
		return 0, false
	}
	var note, velocity byte
	if len(b) > 1 {
		note = b[1]
	}
	if len(b) > 2 {
		velocity = b[2]
	}
	return kaiku.NewCommand(b[0], note, velocity), true
}
