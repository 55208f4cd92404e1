package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/audiolibrelab/masterweb/internal/play"
	"github.com/audiolibrelab/masterweb/internal/service"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [filename]",
	Short: "Play an uploaded or mastered file",
	Long: `Play a file from the output directory (or the upload directory with
--original) on this machine, using the first configured player found on PATH.
Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		original, _ := cmd.Flags().GetBool("original")

		// Playback from the CLI works even when the server has it disabled
		device := play.New(play.NewExecLauncher(cfg.Playback.Players))
		svc, err := newService(service.WithDevice(device))
		if err != nil {
			return err
		}
		defer svc.Close()

		path, err := svc.MasteredPath(args[0])
		if original {
			path, err = svc.OriginalPath(args[0])
		}
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Printf("Playing: %s\n", path)
		if err := svc.Play(path); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return svc.StopPlayback()
			case <-ticker.C:
				if svc.PlaybackStatus().State == play.StateIdle {
					return nil
				}
			}
		}
	},
}

func init() {
	playCmd.Flags().Bool("original", false, "play the uploaded file instead of the mastered one")
}
