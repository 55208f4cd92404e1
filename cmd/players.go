package cmd

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "List configured audio players and whether they are installed",
	Long:  `Check which of the configured playback.players and the ffmpeg/ffprobe binaries are available on PATH.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Audio players (playback enabled: %t)\n", cfg.Playback.Enabled)
		for i, player := range cfg.Playback.Players {
			fmt.Printf("  %d. %-8s %s\n", i+1, player, lookup(player))
		}

		fmt.Printf("\nCodecs\n")
		fmt.Printf("  ffmpeg   %s\n", lookup(cfg.Audio.FFmpeg))
		fmt.Printf("  ffprobe  %s\n", lookup(cfg.Audio.FFprobe))
		return nil
	},
}

func lookup(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return "not found"
	}
	return path
}
