package kaiku

type (
	// AudioSink accepts interleaved float32 samples, e.g. a file encoder
	// or a real-time playback stream.
	AudioSink interface {
		WriteAudio(buffer []float32) error
		Close() error
	}

	// AudioContext is the audio playback device from which sinks can be
	// acquired.
	AudioContext interface {
		Output() AudioSink
		Close() error
	}
)
