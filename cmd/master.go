package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
)

var masterCmd = &cobra.Command{
	Use:   "master [file]",
	Short: "Master an audio file from the command line",
	Long: `Copy the file into the upload directory and run the mastering chain on it,
exactly as an upload through the web interface would.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quality, _ := cmd.Flags().GetString("quality")
		audioType, _ := cmd.Flags().GetString("type")
		format, _ := cmd.Flags().GetString("format")

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		name, err := svc.SaveUpload(filepath.Base(args[0]), f)
		f.Close()
		if err != nil {
			return err
		}

		res, err := svc.Master(ctx, name, quality, audioType)
		if err != nil {
			return err
		}

		out, err := svc.DownloadPath(ctx, res.OutputFilename, format)
		if err != nil {
			return err
		}

		fmt.Printf("Mastered: %s\n", out)
		return nil
	},
}

func init() {
	masterCmd.Flags().StringP("quality", "q", "high", "quality label used in the output name")
	masterCmd.Flags().StringP("type", "t", "music", "audio type label used in the output name")
	masterCmd.Flags().StringP("format", "f", "wav", "output format: wav or mp3")
}
