// Package poly distributes a single MIDI command stream over several
// independent engine instances, each holding a share of the total voice
// budget, and mixes their rendered audio into one buffer. Notes are
// admitted to the least loaded engine; when every engine is full, new
// notes are dropped rather than stealing sounding voices.
package poly

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/mkarjala/kaiku"
	"github.com/viterin/vek/vek32"
)

type (
	Scheduler struct {
		mu       sync.Mutex
		slots    []slot
		routes   map[kaiku.NoteKey][]int // per-key stack of slot indices, trigger order
		drumSlot int                     // -1 when no percussion kit is attached
		factory  kaiku.EngineFactory
		cfg      Config

		jobs    chan renderJob
		results chan *[]float32
		pool    sync.Pool
		closed  bool
	}

	Config struct {
		SampleRate     int
		Channels       int
		MaxPolyphony   int // total voice budget over all engines
		Instances      int // requested engine count; clamped to [1, NumCPU]
		FadeOutSamples int
		PercussionKit  bool
	}

	slot struct {
		engine   kaiku.Engine
		capacity int
		load     int
	}

	renderJob struct {
		slot    int
		samples int
	}
)

func NewScheduler(cfg Config, factory kaiku.EngineFactory) (*Scheduler, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("channel count must be at least 1, got %d", cfg.Channels)
	}
	if cfg.MaxPolyphony < 0 {
		return nil, fmt.Errorf("voice budget cannot be negative, got %d", cfg.MaxPolyphony)
	}
	s := &Scheduler{
		factory:  factory,
		cfg:      cfg,
		drumSlot: -1,
		routes:   make(map[kaiku.NoteKey][]int),
		pool:     sync.Pool{New: func() any { b := make([]float32, 0, 8192); return &b }},
	}
	if err := s.build(); err != nil {
		return nil, err
	}
	s.startWorkers()
	return s, nil
}

// splitVoices partitions a voice budget over a number of instances:
// floor(total/instances) each, the first total%instances getting one
// extra. Entries can be zero when the budget is smaller than the
// instance count.
func splitVoices(total, instances int) []int {
	counts := make([]int, instances)
	base := total / instances
	for i := range counts {
		counts[i] = base
	}
	for i := 0; i < total%instances; i++ {
		counts[i]++
	}
	return counts
}

// clampInstances bounds the requested instance count to at least one
// and at most the number of parallel execution units.
func clampInstances(requested int) int {
	if n := runtime.NumCPU(); requested > n {
		requested = n
	}
	return max(requested, 1)
}

// build constructs the engine slots from the current config. Slots that
// would get zero voices are not constructed at all, so the realized
// instance count can be lower than requested. The percussion kit, if
// any, is attached to the first realized slot.
func (s *Scheduler) build() error {
	s.slots = s.slots[:0]
	s.drumSlot = -1
	for _, capacity := range splitVoices(s.cfg.MaxPolyphony, clampInstances(s.cfg.Instances)) {
		if capacity == 0 {
			continue
		}
		ecfg := kaiku.EngineConfig{
			SampleRate:     s.cfg.SampleRate,
			Channels:       s.cfg.Channels,
			MaxVoices:      capacity,
			FadeOutSamples: s.cfg.FadeOutSamples,
			PercussionKit:  s.cfg.PercussionKit && s.drumSlot < 0,
		}
		engine, err := s.factory.Engine(ecfg)
		if err != nil {
			return fmt.Errorf("constructing engine %d: %w", len(s.slots), err)
		}
		if ecfg.PercussionKit {
			s.drumSlot = len(s.slots)
		}
		s.slots = append(s.slots, slot{engine: engine, capacity: capacity})
	}
	return nil
}

func (s *Scheduler) startWorkers() {
	workers := runtime.GOMAXPROCS(0)
	s.jobs = make(chan renderJob, workers)
	s.results = make(chan *[]float32, workers)
	for i := 0; i < workers; i++ {
		go func() {
			for job := range s.jobs {
				buf := s.pool.Get().(*[]float32)
				*buf = append(*buf, make([]float32, job.samples)...)
				s.slots[job.slot].engine.FillBuffer(*buf)
				s.results <- buf
			}
		}()
	}
}

// Close stops the render workers. The scheduler must not be used after
// closing.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.jobs)
		s.closed = true
	}
}

// QueueCommand routes one packed MIDI command. Percussion-channel notes
// go verbatim to the drum slot outside capacity accounting; melodic
// note-ons are admitted to the least loaded engine with free capacity
// (lowest slot index on ties) or silently dropped when there is none;
// note-offs release the most recently triggered route of their key; all
// other channel commands are broadcast to every engine.
func (s *Scheduler) QueueCommand(cmd kaiku.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.slots) == 0 {
		return
	}
	if cmd.Channel() == kaiku.PercussionChannel && s.drumSlot >= 0 {
		switch cmd.StatusNibble() {
		case kaiku.StatusNoteOn, kaiku.StatusNoteOff:
			s.slots[s.drumSlot].engine.QueueCommand(cmd)
		}
		return
	}
	switch cmd.StatusNibble() {
	case kaiku.StatusNoteOn:
		if cmd.Velocity() == 0 {
			s.noteOff(cmd)
		} else {
			s.noteOn(cmd)
		}
	case kaiku.StatusNoteOff:
		s.noteOff(cmd)
	case kaiku.StatusPolyPressure, kaiku.StatusControlChange,
		kaiku.StatusProgramChange, kaiku.StatusChannelPressure,
		kaiku.StatusPitchBend:
		for i := range s.slots {
			s.slots[i].engine.QueueCommand(cmd)
		}
	}
	// system messages (0xF0..) are not channel commands; ignore
}

func (s *Scheduler) noteOn(cmd kaiku.Command) {
	best := -1
	for i := range s.slots {
		if s.slots[i].load >= s.slots[i].capacity {
			continue
		}
		if best < 0 || s.slots[i].load < s.slots[best].load {
			best = i
		}
	}
	if best < 0 {
		return // every slot is full; admission control drops the note
	}
	s.slots[best].engine.QueueCommand(cmd)
	key := cmd.Key()
	s.routes[key] = append(s.routes[key], best)
	s.slots[best].load++
}

func (s *Scheduler) noteOff(cmd kaiku.Command) {
	key := cmd.Key()
	stack := s.routes[key]
	if len(stack) == 0 {
		return // no admitted note-on to match
	}
	idx := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(s.routes, key)
	} else {
		s.routes[key] = stack[:len(stack)-1]
	}
	s.slots[idx].engine.QueueCommand(cmd)
	if s.slots[idx].load > 0 {
		s.slots[idx].load--
	}
}

// Render fills the buffer with the mixed output of all engines. Each
// engine renders into its own buffer on the worker pool; the results
// are summed here as they complete. The jobs are dispatched from a
// separate goroutine: there can be more slots than workers, so sending
// them all before draining any result would fill the channels and
// deadlock.
func (s *Scheduler) Render(buffer []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(buffer)
	slots, samples := len(s.slots), len(buffer)
	go func() {
		for i := 0; i < slots; i++ {
			s.jobs <- renderJob{slot: i, samples: samples}
		}
	}()
	for i := 0; i < slots; i++ {
		// Summing in completion order makes the least significant bits
		// of the result vary between runs; tests should use tolerances.
		buf := <-s.results
		vek32.Add_Inplace(buffer, *buf)
		*buf = (*buf)[:0]
		s.pool.Put(buf)
	}
}

// SetMaxPolyphony flushes all held notes and rebuilds the engines with
// a new total voice budget.
func (s *Scheduler) SetMaxPolyphony(total int) error {
	if total < 0 {
		return fmt.Errorf("voice budget cannot be negative, got %d", total)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushNotes()
	s.cfg.MaxPolyphony = total
	return s.build()
}

// SetInstances flushes all held notes and rebuilds the engines with a
// new requested instance count.
func (s *Scheduler) SetInstances(instances int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushNotes()
	s.cfg.Instances = instances
	return s.build()
}

// flushNotes sends a note-off to the recorded slot of every held route,
// so no engine is left holding a voice the next topology cannot track.
func (s *Scheduler) flushNotes() {
	for key, stack := range s.routes {
		off := kaiku.NoteOff(key.Channel, key.Note)
		for i := len(stack) - 1; i >= 0; i-- {
			s.slots[stack[i]].engine.QueueCommand(off)
		}
	}
	clear(s.routes)
	for i := range s.slots {
		s.slots[i].load = 0
	}
}

// Polyphony returns the number of melodic voices currently admitted
// across all engines. Percussion bypasses capacity tracking and is not
// counted.
func (s *Scheduler) Polyphony() (n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		n += s.slots[i].load
	}
	return
}

// MaxPolyphony returns the sum of realized engine capacities.
func (s *Scheduler) MaxPolyphony() (n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		n += s.slots[i].capacity
	}
	return
}

// RenderLoad returns the highest render-load ratio reported by any
// engine: the mix is only as fast as its slowest instance.
func (s *Scheduler) RenderLoad() (load float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if l := s.slots[i].engine.RenderLoad(); l > load {
			load = l
		}
	}
	return
}

// NumInstances returns the realized engine count.
func (s *Scheduler) NumInstances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Capacities returns the realized per-engine voice capacities.
func (s *Scheduler) Capacities() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make([]int, len(s.slots))
	for i := range s.slots {
		counts[i] = s.slots[i].capacity
	}
	return counts
}
