package midifile_test

import (
	"bytes"
	"math"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/mkarjala/kaiku"
	"github.com/mkarjala/kaiku/midifile"
)

// writes a two track file at 120 BPM: 960 ticks is half a second
func testSMF(t *testing.T) []byte {
	t.Helper()
	s := smf.New()
	var first smf.Track
	first.Add(0, smf.MetaTempo(120))
	first.Add(0, midi.NoteOn(0, 60, 100))
	first.Add(960, midi.NoteOff(0, 60))
	first.Close(0)
	if err := s.Add(first); err != nil {
		t.Fatalf("error adding track: %v", err)
	}
	var second smf.Track
	second.Add(480, midi.NoteOn(1, 64, 90))
	second.Add(960, midi.NoteOff(1, 64))
	second.Close(0)
	if err := s.Add(second); err != nil {
		t.Fatalf("error adding track: %v", err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("error writing smf: %v", err)
	}
	return buf.Bytes()
}

func TestReadFromMergesTracks(t *testing.T) {
	stream, err := midifile.ReadFrom(bytes.NewReader(testSMF(t)))
	if err != nil {
		t.Fatalf("error reading stream: %v", err)
	}
	if stream.NoteCount != 2 {
		t.Errorf("got note count %d, expected 2", stream.NoteCount)
	}
	if math.Abs(stream.Duration-0.75) > 1e-6 {
		t.Errorf("got duration %v, expected 0.75", stream.Duration)
	}
	var total float64
	var cmds []kaiku.Command
	for _, event := range stream.Events {
		if event.Delta < 0 {
			t.Fatalf("got negative delta %v, the merged stream must be time ordered", event.Delta)
		}
		total += event.Delta
		if event.HasCmd {
			cmds = append(cmds, event.Cmd)
		}
	}
	if math.Abs(total-0.75) > 1e-6 {
		t.Errorf("deltas sum to %v, expected the duration 0.75", total)
	}
	expected := []kaiku.Command{
		kaiku.NoteOn(0, 60, 100),
		kaiku.NoteOn(1, 64, 90),
		kaiku.NoteOff(0, 60),
		kaiku.NoteOff(1, 64),
	}
	if len(cmds) != len(expected) {
		t.Fatalf("got %d commands, expected %d: %v", len(cmds), len(expected), cmds)
	}
	for i, cmd := range cmds {
		if cmd != expected[i] {
			t.Errorf("command %d: got %v, expected %v", i, cmd, expected[i])
		}
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := midifile.Read("does-not-exist.mid"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
