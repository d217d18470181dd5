package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	haven "github.com/havenyouth/haven-go"
)

func init() {
	rootCmd.AddCommand(flushCmd)
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Replay queued offline writes",
	Long:  "Replay every queued message and post against the backend, in the order they were written. A no-op while offline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := getClient()
		off, store := getOffline(ctx, c)
		defer store.Close()

		before, err := off.Queued(ctx)
		if err != nil {
			return fmt.Errorf("cannot read offline queue: %w", err)
		}
		if len(before) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		if !off.Online(ctx) {
			fmt.Printf("Offline; %d item(s) kept in queue.\n", len(before))
			return nil
		}

		inbox := haven.NewInboxStore(c, off, nil)
		spaces := haven.NewSpacesStore(c, off, nil, nil)

		err = off.Flush(ctx, map[haven.QueueItemType]haven.Processor{
			haven.QueueMessage: inbox.QueueProcessor(),
			haven.QueuePost:    spaces.QueueProcessor(),
		})
		if err != nil {
			return err
		}

		after, err := off.Queued(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Delivered %d of %d queued item(s); %d remain.\n",
			len(before)-len(after), len(before), len(after))
		return nil
	},
}
