package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/viterin/vek/vek32"

	"github.com/mkarjala/kaiku"
	"github.com/mkarjala/kaiku/limiter"
	"github.com/mkarjala/kaiku/midifile"
	"github.com/mkarjala/kaiku/oto"
	"github.com/mkarjala/kaiku/poly"
	"github.com/mkarjala/kaiku/sampler"
	"github.com/mkarjala/kaiku/version"
	"github.com/mkarjala/kaiku/wavetable"
)

const (
	limiterThresholdDB = 0.0
	limiterReleaseMS   = 100.0
	limiterLookaheadMS = 20.0
)

func main() {
	cfg := defaultConfig()
	output := flag.String("o", "", "Output .wav path. Defaults to the MIDI file name with a .wav extension, or raw float32 samples on standard output in headless mode.")
	rate := flag.Int("rate", cfg.SampleRate, "Sample rate in Hz.")
	channels := flag.Int("channels", cfg.Channels, "Number of audio channels, 1 for mono or 2 for stereo.")
	polyphony := flag.Int("polyphony", cfg.Polyphony, "Maximum number of simultaneous voices.")
	instances := flag.Int("instances", cfg.Instances, "Number of engine instances to spread the voices over. 0 uses one per CPU.")
	noLimiter := flag.Bool("no-limiter", false, "Disable the output peak limiter.")
	earrape := flag.Bool("earrape", false, "Wrap samples around like an unchecked float to 16-bit integer cast, before the limiter.")
	headless := flag.Bool("headless", false, "Non-interactive mode: machine readable key=value progress on standard error.")
	logInterval := flag.Int("log-interval", cfg.LogIntervalMS, "Progress report interval in milliseconds for headless mode.")
	speed := flag.Float64("speed", cfg.Speed, "Maximum render speed as a multiple of realtime. 0 renders as fast as possible.")
	play := flag.Bool("play", false, "Play the rendered audio while rendering.")
	samples := flag.String("samples", "", "Folder of per-key sample .wav files to use instead of the built-in piano.")
	sampleFormat := flag.String("sample-format", cfg.SampleFormat, "File name pattern for sample files, with {key} replaced by the MIDI key number.")
	configPath := flag.String("config", "", "YAML config file. Explicitly given flags override it.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	// flags that the user actually set win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			cfg.Output = *output
		case "rate":
			cfg.SampleRate = *rate
		case "channels":
			cfg.Channels = *channels
		case "polyphony":
			cfg.Polyphony = *polyphony
		case "instances":
			cfg.Instances = *instances
		case "no-limiter":
			cfg.NoLimiter = *noLimiter
		case "earrape":
			cfg.Earrape = *earrape
		case "headless":
			cfg.Headless = *headless
		case "log-interval":
			cfg.LogIntervalMS = *logInterval
		case "speed":
			cfg.Speed = *speed
		case "play":
			cfg.Play = *play
		case "samples":
			cfg.Samples = *samples
		case "sample-format":
			cfg.SampleFormat = *sampleFormat
		}
	})
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := render(flag.Arg(0), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "could not render %v: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Renders a MIDI file to audio.\nUsage: %s [flags] song.mid\n", os.Args[0])
	flag.PrintDefaults()
}

// reporter writes progress either as human readable lines or, in
// headless mode, as key=value lines on standard error.
type reporter struct {
	headless bool
	logger   *log.Logger
}

func (r reporter) status(human, machine string) {
	if r.headless {
		r.logger.Print(machine)
	} else {
		fmt.Println(human)
	}
}

func render(midiPath string, cfg renderConfig) error {
	rep := reporter{headless: cfg.Headless, logger: log.New(os.Stderr, "", 0)}

	rep.status("Loading MIDI: "+filepath.Base(midiPath), "loading_midi_file="+filepath.Base(midiPath))
	stream, err := midifile.Read(midiPath)
	if err != nil {
		return err
	}
	rep.status(fmt.Sprintf("MIDI Loaded! Duration: %s, %d notes", formatDuration(stream.Duration), stream.NoteCount),
		fmt.Sprintf("midi_loaded duration_sec=%.2f note_count=%d", stream.Duration, stream.NoteCount))

	rep.status("Generating samples...", "generating_samples")
	var melodic *wavetable.Set
	if cfg.Samples != "" {
		melodic, err = wavetable.LoadSet(cfg.Samples, cfg.SampleFormat)
		if err != nil {
			return err
		}
	} else {
		melodic = wavetable.Piano(cfg.SampleRate)
	}
	drums := wavetable.DrumKit(cfg.SampleRate)
	rep.status("Samples ready!", "samples_ready")

	numInstances := cfg.Instances
	if numInstances == 0 {
		numInstances = runtime.NumCPU()
	}
	sched, err := poly.NewScheduler(poly.Config{
		SampleRate:     cfg.SampleRate,
		Channels:       cfg.Channels,
		MaxPolyphony:   cfg.Polyphony,
		Instances:      numInstances,
		FadeOutSamples: cfg.SampleRate / 10,
		PercussionKit:  true,
	}, &sampler.Factory{Melodic: melodic, Drums: drums})
	if err != nil {
		return fmt.Errorf("could not create scheduler: %v", err)
	}
	defer sched.Close()
	rep.status(fmt.Sprintf("Synth ready: %d voices over %d instances", sched.MaxPolyphony(), sched.NumInstances()),
		fmt.Sprintf("synth_ready max_voices=%d instances=%d", sched.MaxPolyphony(), sched.NumInstances()))

	var limiters *limiter.Bank
	if !cfg.NoLimiter {
		limiters, err = limiter.NewBank(cfg.Channels, float32(cfg.SampleRate), limiterThresholdDB, limiterReleaseMS, limiterLookaheadMS)
		if err != nil {
			return fmt.Errorf("could not create limiter: %v", err)
		}
	}

	// pick the output: an explicit path or the MIDI name as .wav; raw
	// float32 samples on stdout when headless and no path was given
	var (
		wavFile *os.File
		wavEnc  *wav.Encoder
		rawOut  *bufio.Writer
	)
	switch {
	case cfg.Output == "" && cfg.Headless:
		rawOut = bufio.NewWriter(os.Stdout)
	default:
		path := cfg.Output
		if path == "" {
			base := filepath.Base(midiPath)
			path = strings.TrimSuffix(base, filepath.Ext(base)) + ".wav"
		}
		wavFile, err = os.Create(path)
		if err != nil {
			return fmt.Errorf("could not create output file: %v", err)
		}
		wavEnc = wav.NewEncoder(wavFile, cfg.SampleRate, 16, cfg.Channels, 1)
	}

	var sink kaiku.AudioSink
	if cfg.Play {
		audioContext, err := oto.NewContext(cfg.SampleRate, cfg.Channels)
		if err != nil {
			return fmt.Errorf("could not acquire audio context: %v", err)
		}
		defer audioContext.Close()
		sink = audioContext.Output()
		defer sink.Close()
	}

	var (
		intBuf     []int
		peakLevel  float32
		writeErr   error
		rawScratch []byte
	)
	writeAudio := func(buffer []float32) error {
		if cfg.Earrape {
			wrapSamples(buffer)
		}
		if limiters != nil {
			limiters.Process(buffer)
		}
		if p := vek32.Max(buffer); p > peakLevel {
			peakLevel = p
		}
		if p := -vek32.Min(buffer); p > peakLevel {
			peakLevel = p
		}
		if wavEnc != nil {
			intBuf = intBuf[:0]
			for _, v := range buffer {
				intBuf = append(intBuf, int(clampUnit(v)*32767))
			}
			if err := wavEnc.Write(&audio.IntBuffer{
				Format:         &audio.Format{NumChannels: cfg.Channels, SampleRate: cfg.SampleRate},
				Data:           intBuf,
				SourceBitDepth: 16,
			}); err != nil {
				return fmt.Errorf("could not write output: %v", err)
			}
		}
		if rawOut != nil {
			rawScratch = rawScratch[:0]
			for _, v := range buffer {
				rawScratch = binary.LittleEndian.AppendUint32(rawScratch, math.Float32bits(v))
			}
			if _, err := rawOut.Write(rawScratch); err != nil {
				return fmt.Errorf("could not write output: %v", err)
			}
		}
		if sink != nil {
			if err := sink.WriteAudio(buffer); err != nil {
				return fmt.Errorf("could not play audio: %v", err)
			}
		}
		return nil
	}

	rep.status("Rendering started", "rendering_started")
	var (
		startTime      = time.Now()
		lastReport     = time.Now()
		reportInterval = time.Duration(cfg.LogIntervalMS) * time.Millisecond
		timeAcc        float64
		renderedFrames int64
		peakPolyphony  int
		renderBuf      []float32
	)
	for _, event := range stream.Events {
		timeAcc += event.Delta * float64(cfg.SampleRate)
		frames := int(math.Floor(timeAcc))
		timeAcc -= float64(frames)
		if frames > 0 {
			renderBuf = append(renderBuf[:0], make([]float32, frames*cfg.Channels)...)
			sched.Render(renderBuf)
			if writeErr = writeAudio(renderBuf); writeErr != nil {
				return writeErr
			}
			renderedFrames += int64(frames)
		}
		if event.HasCmd {
			sched.QueueCommand(event.Cmd)
		}
		if active := sched.Polyphony(); active > peakPolyphony {
			peakPolyphony = active
		}
		if cfg.Speed > 0 {
			expected := time.Duration(float64(renderedFrames) / (float64(cfg.SampleRate) * cfg.Speed) * float64(time.Second))
			if elapsed := time.Since(startTime); elapsed < expected {
				time.Sleep(expected - elapsed)
			}
		}
		if time.Since(lastReport) >= reportInterval {
			currentSec := float64(renderedFrames) / float64(cfg.SampleRate)
			if cfg.Headless {
				rep.logger.Printf("progress current_sec=%.2f total_sec=%.2f percent=%.1f active_voices=%d max_voices=%d peak_voices=%d load_percent=%.2f",
					currentSec, stream.Duration, currentSec/stream.Duration*100,
					sched.Polyphony(), sched.MaxPolyphony(), peakPolyphony, sched.RenderLoad()*100)
			} else {
				fmt.Printf("\rTime: %s / %s  Voices: %d (Peak: %d) / %d  Load: %.2f%%   ",
					formatDuration(currentSec), formatDuration(stream.Duration),
					sched.Polyphony(), peakPolyphony, sched.MaxPolyphony(), sched.RenderLoad()*100)
			}
			lastReport = time.Now()
		}
	}

	// let releases and the limiter tail ring out for one second
	renderBuf = append(renderBuf[:0], make([]float32, cfg.SampleRate*cfg.Channels)...)
	sched.Render(renderBuf)
	if err := writeAudio(renderBuf); err != nil {
		return err
	}

	if wavEnc != nil {
		if err := wavEnc.Close(); err != nil {
			return fmt.Errorf("could not finalize output: %v", err)
		}
		if err := wavFile.Close(); err != nil {
			return fmt.Errorf("could not close output: %v", err)
		}
	}
	if rawOut != nil {
		if err := rawOut.Flush(); err != nil {
			return fmt.Errorf("could not flush output: %v", err)
		}
	}

	took := time.Since(startTime).Seconds()
	if !cfg.Headless {
		fmt.Println()
	}
	rep.status(fmt.Sprintf("Rendering finished in %.2f s (%.2fx realtime), peak %d voices, peak level %.3f",
		took, stream.Duration/took, peakPolyphony, peakLevel),
		fmt.Sprintf("rendering_finished rendering_time_sec=%.2f realtime_ratio=%.2f peak_voices=%d peak_level=%.3f",
			took, stream.Duration/took, peakPolyphony, peakLevel))
	return nil
}

// wrapSamples distorts the buffer the way an unchecked float to 16-bit
// integer cast would: samples beyond full scale wrap around instead of
// clipping.
func wrapSamples(buffer []float32) {
	for i, v := range buffer {
		scaled := int32(v * 32768)
		wrapped := int16(uint16(scaled))
		buffer[i] = float32(wrapped) / 32768
	}
}

func clampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	return fmt.Sprintf("%02d:%02d:%02d.%02d",
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60,
		int(d.Milliseconds()/10)%100)
}
