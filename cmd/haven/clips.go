package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	haven "github.com/havenyouth/haven-go"
)

var (
	clipDescription string
	clipActiveDate  string
)

func init() {
	rootCmd.AddCommand(clipsCmd)
	clipsCmd.AddCommand(clipsTodayCmd)
	clipsCmd.AddCommand(clipsUploadCmd)

	clipsUploadCmd.Flags().StringVar(&clipDescription, "description", "", "clip description")
	clipsUploadCmd.Flags().StringVar(&clipActiveDate, "active-date", "", "date to feature the clip (YYYY-MM-DD)")
}

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "Daily clips feed",
}

var clipsTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's clips",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := getClient()
		off, store := getOffline(ctx, c)
		defer store.Close()

		clips := haven.NewClipsStore(c, off)
		if err := clips.LoadToday(ctx); err != nil {
			return err
		}
		list := clips.Clips()
		if len(list) == 0 {
			fmt.Println("No clips today.")
			return nil
		}
		for _, clip := range list {
			marker := ""
			if clips.IsBookmarked(clip.ID) {
				marker = " *"
			}
			fmt.Printf("%s  %s%s\n    %s\n", clip.ID, clip.Title, marker, clip.VideoURL)
		}
		return nil
	},
}

var clipsUploadCmd = &cobra.Command{
	Use:   "upload <file> <title>",
	Short: "Upload a clip (staff only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("cannot read video file: %w", err)
		}

		ctx := context.Background()
		c := getClient()
		off, store := getOffline(ctx, c)
		defer store.Close()

		clips := haven.NewClipsStore(c, off)
		err = clips.Upload(ctx, data, filepath.Base(args[0]), args[1], clipDescription, clipActiveDate)
		if err != nil {
			return err
		}
		fmt.Println("Uploaded.")
		return nil
	},
}
