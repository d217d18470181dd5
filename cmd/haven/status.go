package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and offline queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := getClient()
		off, store := getOffline(ctx, c)
		defer store.Close()

		fmt.Printf("Backend:  %s\n", c.BaseURL())
		fmt.Printf("User:     %s\n", c.UserID())

		if off.Online(ctx) {
			fmt.Println("Network:  online")
		} else {
			fmt.Println("Network:  offline")
		}

		queued, err := off.Queued(ctx)
		if err != nil {
			return fmt.Errorf("cannot read offline queue: %w", err)
		}
		fmt.Printf("Queued:   %d pending write(s)\n", len(queued))
		for i, item := range queued {
			fmt.Printf("  %d. %s\n", i+1, item.Type)
		}
		return nil
	},
}
