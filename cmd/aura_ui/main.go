package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/spf13/cobra"

	"github.com/cbegin/musicaura-go"
	"github.com/cbegin/musicaura-go/internal/analysis"
	"github.com/cbegin/musicaura-go/internal/render"
)

const (
	windowW    = 1100
	windowH    = 720
	minWindowW = 900
	minWindowH = 620
)

// Command-line configuration
var config struct {
	sampleRate int
	fftSize    int
	smoothing  float64
	particles  int
	volume     float64
	logLevel   string
	initial    string
}

var rootCmd = &cobra.Command{
	Use:   "aura_ui [file]",
	Short: "Audio-reactive aura visualizer",
	Long: `Plays an audio file and renders a pulsing aura, a ring of frequency
bars and a particle swarm driven by the spectrum of what is being heard.

Pick a file in the navigator or drop one onto the window.
Space toggles playback, Left/Right seek by five seconds.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	PreRunE:       validateConfig,
	RunE:          runAura,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().IntVar(&config.sampleRate, "sample-rate", 48000,
		"Output sample rate in Hz")
	rootCmd.Flags().IntVar(&config.fftSize, "fft-size", analysis.DefaultFFTSize,
		"Analysis window size (power of two)")
	rootCmd.Flags().Float64Var(&config.smoothing, "smoothing", analysis.DefaultSmoothing,
		"Spectrum smoothing time constant in [0,1]")
	rootCmd.Flags().IntVar(&config.particles, "particles", render.DefaultParticles,
		"Number of particles in the swarm")
	rootCmd.Flags().Float64Var(&config.volume, "volume", 1,
		"Initial volume in [0,1]")
	rootCmd.Flags().StringVar(&config.logLevel, "log-level", "info",
		"Log level: debug, info, warn or error")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if config.sampleRate < 8000 || config.sampleRate > 192000 {
		return fmt.Errorf("--sample-rate %d out of range [8000, 192000]", config.sampleRate)
	}
	if config.particles < 0 {
		return errors.New("--particles must not be negative")
	}
	if config.volume < 0 || config.volume > 1 {
		return fmt.Errorf("--volume %v out of range [0, 1]", config.volume)
	}
	level, err := parseLevel(config.logLevel)
	if err != nil {
		return err
	}
	initLogger(level)
	if len(args) == 1 {
		p, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolve %q: %w", args[0], err)
		}
		config.initial = p
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("--log-level: %w", err)
	}
	return level, nil
}

// initLogger installs a text handler on stderr as the default logger, so
// the stdlib log package routes through it too.
func initLogger(level slog.Level) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
	slog.SetDefault(slog.New(h))
}

func runAura(cmd *cobra.Command, args []string) error {
	player, err := aura.NewPlayer(config.sampleRate,
		aura.WithFFTSize(config.fftSize),
		aura.WithSmoothing(config.smoothing),
		aura.WithVolume(config.volume),
	)
	if err != nil {
		return err
	}

	g, err := newGame(player, config.particles, config.initial)
	if err != nil {
		_ = player.Close()
		return err
	}
	defer g.Close()

	slog.Info("starting",
		"sampleRate", config.sampleRate,
		"fftSize", config.fftSize,
		"smoothing", config.smoothing,
		"particles", config.particles,
	)

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("Musical Aura")
	return ebiten.RunGame(g)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
