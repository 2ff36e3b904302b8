package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbegin/musicaura-go"
	"github.com/cbegin/musicaura-go/internal/render"
)

const meterWidth = 20

var config struct {
	sampleRate int
	fftSize    int
	volume     float64
	interval   time.Duration
	start      float64
	readyWait  time.Duration
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "aura_play <file>",
	Short: "Play an audio file and print its spectrum bands",
	Long: `Plays an audio file without a window and prints the bass, mid and
treble levels the visualizer would react to, until the track ends.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPlay,
}

func init() {
	rootCmd.Flags().IntVar(&config.sampleRate, "sample-rate", 48000, "output sample rate")
	rootCmd.Flags().IntVar(&config.fftSize, "fft-size", 512, "analysis window size (power of two)")
	rootCmd.Flags().Float64Var(&config.volume, "volume", 1.0, "volume in [0,1]")
	rootCmd.Flags().DurationVar(&config.interval, "interval", 250*time.Millisecond, "time between level readouts")
	rootCmd.Flags().Float64Var(&config.start, "start", 0, "start position in seconds")
	rootCmd.Flags().DurationVar(&config.readyWait, "ready-timeout", 5*time.Second, "how long to wait for audio to start")
	rootCmd.Flags().StringVar(&config.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
}

func runPlay(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(config.logLevel))); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	if config.interval <= 0 {
		return errors.New("--interval must be positive")
	}

	pl, err := aura.NewPlayer(config.sampleRate, aura.WithFFTSize(config.fftSize), aura.WithVolume(config.volume))
	if err != nil {
		return err
	}
	defer pl.Close()

	ok, err := pl.LoadFile(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: not an audio file", args[0])
	}
	info, _ := pl.Track()
	fmt.Printf("%s (%s, %s)\n", info.Display, info.Format, aura.FormatTime(info.Duration))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events := pl.Watch()
	if config.start > 0 {
		pl.SeekTo(config.start)
	}
	pl.TogglePlay()

	readyCtx, cancel := context.WithTimeout(ctx, config.readyWait)
	err = pl.WaitReady(readyCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("waiting for audio: %w", err)
	}

	bins := make([]uint8, pl.BinCount())
	ticker := time.NewTicker(config.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case ev := <-events:
			if ev.Kind == aura.EventPlaybackEnded {
				fmt.Println("\nplayback completed")
				return nil
			}
		case <-ticker.C:
			pl.Spectrum(bins)
			lv := render.Bands(bins)
			fmt.Printf("\r%s / %s  bass %s  mid %s  treble %s",
				aura.FormatTime(pl.Position()), aura.FormatTime(pl.Duration()),
				meter(lv.Bass), meter(lv.Mid), meter(lv.Treble))
		}
	}
}

func meter(v float64) string {
	n := int(v*meterWidth + 0.5)
	n = max(0, min(meterWidth, n))
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", meterWidth-n) + "]"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
