// Command tutorphone runs a live voice conversation with a remote tutoring
// model: microphone audio streams out, synthesized speech streams back, and
// an optional image frame is shared on a timer so the model can see what the
// user is working on.
//
// Usage:
//
//	tutorphone [flags]
//
// Configuration is read from flags, the environment (TUTORPHONE_ prefix), an
// optional config file, and a local .env file, in that order of precedence.
//
//	TUTORPHONE_URL    - websocket endpoint of the live model channel
//	TUTORPHONE_MODEL  - model name to converse with
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/422christopher/Tutor-Phone/pkg/audio"
	"github.com/422christopher/Tutor-Phone/pkg/capture"
	"github.com/422christopher/Tutor-Phone/pkg/live"
	"github.com/422christopher/Tutor-Phone/pkg/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tutorphone: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		configPath    = flag.String("config", "", "optional config file (yaml/toml/json)")
		recordDir     = flag.String("record", "", "record the conversation to a WAV file under this directory")
		framePath     = flag.String("frame", "", "image file to share with the model on a timer")
		frameInterval = flag.Duration("frame-interval", session.DefaultFrameInterval, "frame sharing cadence")
		tone          = flag.Bool("tone", false, "play a one-second test tone and exit")
		verbose       = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	v := viper.New()
	v.SetEnvPrefix("TUTORPHONE")
	v.AutomaticEnv()
	v.SetDefault("model", "models/voice-tutor-1")
	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if *tone {
		return playTestTone()
	}

	url := v.GetString("url")
	if url == "" {
		return fmt.Errorf("no channel endpoint: set TUTORPHONE_URL or url in the config file")
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithChannelConfig(live.Config{
			URL:    url,
			Model:  v.GetString("model"),
			Logger: logger,
		}),
		session.WithStatusHandler(func(st session.Status) {
			fmt.Printf("[%s]\n", st)
		}),
		session.WithTranscriptHandler(func(text string) {
			fmt.Printf("tutor: %s\n", text)
		}),
	}
	if *recordDir != "" {
		opts = append(opts, session.WithRecording(*recordDir))
	}
	if *framePath != "" {
		src, err := capture.LoadStillSource(*framePath)
		if err != nil {
			return err
		}
		opts = append(opts,
			session.WithFrameSource(src),
			session.WithFrameInterval(*frameInterval),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := session.New(opts...)
	if err := sess.Start(ctx); err != nil {
		return err
	}

	fmt.Println("Listening... press Ctrl-C to hang up.")
	<-ctx.Done()

	sess.Stop()
	if artifact, ok := sess.Recording(); ok {
		note := ""
		if artifact.Degraded {
			note = " (microphone only)"
		}
		fmt.Printf("recording saved to %s%s\n", artifact.Path, note)
	}
	return nil
}

// playTestTone checks the playback path end to end without touching the
// network or the microphone.
func playTestTone() error {
	out, err := audio.NewDeviceOutput(audio.DefaultOutputRate)
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}
	defer out.Close()

	buf := audio.SineBuffer(440, audio.DefaultOutputRate, time.Second, 0.3)
	done := make(chan struct{})
	if _, err := out.Play(buf, out.Now(), func() { close(done) }); err != nil {
		return fmt.Errorf("play tone: %w", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("tone playback did not finish")
	}
	return nil
}
