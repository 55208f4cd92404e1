package cmd

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/masterweb/internal/review"

	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List or add reviews",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := review.Open(cfg.Storage.Database)
		if err != nil {
			return err
		}
		defer store.Close()

		reviews, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(reviews) == 0 {
			fmt.Println("No reviews yet")
			return nil
		}
		for _, r := range reviews {
			fmt.Printf("#%d %s (%s)\n  %s\n", r.ID, r.Author, r.Timestamp.Format(review.TimestampLayout), r.Content)
		}
		return nil
	},
}

var reviewAddCmd = &cobra.Command{
	Use:   "add [author] [content...]",
	Short: "Add a review",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := review.Open(cfg.Storage.Database)
		if err != nil {
			return err
		}
		defer store.Close()

		r, err := store.Add(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("Review #%d added\n", r.ID)
		return nil
	},
}

func init() {
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewAddCmd)
}
