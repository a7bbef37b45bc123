package kaiku

import "fmt"

// Command is one packed MIDI channel command: the status byte in bits 0-7,
// the note (or first data byte) in bits 8-15 and the velocity (or second
// data byte) in bits 16-23. This is the wire format engines consume.
type Command uint32

// MIDI status nibbles, in the upper four bits of the status byte.
const (
	StatusNoteOff         = 0x80
	StatusNoteOn          = 0x90
	StatusPolyPressure    = 0xA0
	StatusControlChange   = 0xB0
	StatusProgramChange   = 0xC0
	StatusChannelPressure = 0xD0
	StatusPitchBend       = 0xE0
)

// PercussionChannel is the reserved general MIDI percussion channel.
const PercussionChannel = 9

func NewCommand(status, note, velocity byte) Command {
	return Command(status) | Command(note)<<8 | Command(velocity)<<16
}

func NoteOn(channel, note, velocity byte) Command {
	return NewCommand(StatusNoteOn|channel&0x0F, note, velocity)
}

func NoteOff(channel, note byte) Command {
	return NewCommand(StatusNoteOff|channel&0x0F, note, 0)
}

func (c Command) Status() byte       { return byte(c) }
func (c Command) StatusNibble() byte { return byte(c) & 0xF0 }
func (c Command) Channel() byte      { return byte(c) & 0x0F }
func (c Command) Note() byte         { return byte(c >> 8 & 0x7F) }
func (c Command) Velocity() byte     { return byte(c >> 16 & 0x7F) }

// Key returns the NoteKey this command addresses. Only meaningful for
// note on/off commands.
func (c Command) Key() NoteKey {
	return NoteKey{Channel: c.Channel(), Note: c.Note()}
}

func (c Command) String() string {
	return fmt.Sprintf("%02x:%d:%d", c.Status(), c.Note(), c.Velocity())
}

// NoteKey identifies one currently sounding note for routing purposes. It
// is not unique across overlapping retriggers of the same key; the
// scheduler keeps a stack of routes per key for that reason.
type NoteKey struct {
	Channel byte
	Note    byte
}
