package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/masterweb/internal/config"
	"github.com/audiolibrelab/masterweb/internal/service"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "masterweb",
	Short: "Web-triggered audio mastering",
	Long: `masterweb masters uploaded mp3 and wav files with a fixed chain:
a high-pass filter on the side channel, two limiters in series and an
expander slot. Results are written as WAV and can be downloaded as WAV or MP3.

Run 'masterweb serve' for the web interface or 'masterweb master' to
process a file from the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// config init writes the file that would be loaded here
		if cmd.Name() == "init" {
			return nil
		}

		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "file", cfgFile)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/masterweb.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(playersCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch {
	case level <= 0:
		slogLevel = slog.LevelInfo
	default:
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))

	if level >= 2 {
		os.Setenv("FFMPEG_LOGLEVEL", "debug")
	}
}

// newService builds the mastering service from the loaded config
func newService(opts ...service.Option) (*service.MasteringService, error) {
	svc, err := service.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}
