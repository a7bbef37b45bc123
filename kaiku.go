package kaiku

type (
	// Engine is a single polyphonic sample-playback unit with a fixed
	// maximum voice count. It consumes packed MIDI commands one at a time
	// and renders interleaved float32 audio into a caller-supplied buffer.
	// An Engine owns its envelope, pitch and fade-out logic; callers only
	// see the command/buffer boundary.
	Engine interface {
		QueueCommand(cmd Command)
		FillBuffer(buffer []float32)
		Polyphony() int
		MaxPolyphony() int
		RenderLoad() float32
	}

	// EngineFactory constructs Engine instances. The scheduler uses it to
	// build one engine per slot, each with its own share of the total
	// voice budget.
	EngineFactory interface {
		Engine(cfg EngineConfig) (Engine, error)
	}

	// EngineConfig are the construction parameters of one Engine instance.
	EngineConfig struct {
		SampleRate     int
		Channels       int
		MaxVoices      int
		FadeOutSamples int

		// PercussionKit tells the engine to attach the percussion kit, if
		// the factory has one. At most one engine per scheduler gets this.
		PercussionKit bool
	}
)
