package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/masterweb/internal/dsp"
	"github.com/audiolibrelab/masterweb/internal/master"
	"github.com/audiolibrelab/masterweb/internal/service"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [filename]",
	Short: "Show the mastering chain and file paths for an upload",
	Long:  `Display where an upload with the given name would be stored, the name and path of its mastered output, and the stages that will run.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quality, _ := cmd.Flags().GetString("quality")
		audioType, _ := cmd.Flags().GetString("type")

		name := service.SecureFilename(args[0])
		if name == "" {
			return fmt.Errorf("%q does not leave a usable filename", args[0])
		}
		req := master.Request{Quality: quality, AudioType: audioType, Filename: name}

		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("upload: %s\n", filepath.Join(cfg.Storage.UploadDirectory, name))
		fmt.Printf("mastered: %s\n", filepath.Join(cfg.Storage.OutputDirectory, req.OutputName()))
		fmt.Printf("clean_name: %s\n", name)

		limiter, err := dsp.NewLimiter(dsp.LimiterMode(cfg.Mastering.Limiter))
		if err != nil {
			return err
		}

		fmt.Printf("\n=== MASTERING CHAIN ===\n")
		fmt.Printf("limiter: %s\n", cfg.Mastering.Limiter)
		fmt.Printf("stages: %s\n", strings.Join(master.DefaultStages(limiter).Names(), " -> "))
		return nil
	},
}

func init() {
	infoCmd.Flags().StringP("quality", "q", "high", "quality label used in the output name")
	infoCmd.Flags().StringP("type", "t", "music", "audio type label used in the output name")
	rootCmd.AddCommand(infoCmd)
}
