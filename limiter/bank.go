package limiter

import "fmt"

// Bank holds one independent limiter per channel of an interleaved
// signal. Each limiter sees exactly its channel's samples through a
// strided view, so the per-channel envelope state never mixes channels.
type Bank struct {
	limiters []*Limiter
}

func NewBank(channels int, sampleRate, thresholdDB, releaseMS, lookaheadMS float32) (*Bank, error) {
	if channels < 1 {
		return nil, fmt.Errorf("channel count must be at least 1, got %d", channels)
	}
	limiters := make([]*Limiter, channels)
	for i := range limiters {
		l, err := New(sampleRate, thresholdDB, releaseMS, lookaheadMS)
		if err != nil {
			return nil, err
		}
		limiters[i] = l
	}
	return &Bank{limiters: limiters}, nil
}

// Channels returns the number of channels the bank was built for.
func (b *Bank) Channels() int { return len(b.limiters) }

// Limiter returns the limiter of one channel, mainly for inspection.
func (b *Bank) Limiter(channel int) *Limiter { return b.limiters[channel] }

// Process limits an interleaved buffer in place. len(buffer) must be a
// multiple of the channel count.
func (b *Bank) Process(buffer []float32) {
	n := len(b.limiters)
	if n == 1 {
		b.limiters[0].Process(buffer)
		return
	}
	for ch, l := range b.limiters {
		for i := ch; i < len(buffer); i += n {
			buffer[i] = l.processSample(buffer[i])
		}
	}
}
