package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	haven "github.com/havenyouth/haven-go"
)

func init() {
	rootCmd.AddCommand(inboxCmd)
	inboxCmd.AddCommand(inboxThreadsCmd)
	inboxCmd.AddCommand(inboxHistoryCmd)
	inboxCmd.AddCommand(inboxSendCmd)
	inboxCmd.AddCommand(inboxWatchCmd)
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Direct messages",
}

var inboxThreadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List direct-message threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := getClient()
		off, store := getOffline(ctx, c)
		defer store.Close()

		inbox := haven.NewInboxStore(c, off, nil)
		if err := inbox.LoadThreads(ctx); err != nil {
			return err
		}
		threads := inbox.Threads()
		if len(threads) == 0 {
			fmt.Println("No threads.")
			return nil
		}
		for _, t := range threads {
			fmt.Printf("%s  %s (%s)\n", t.ID, t.OtherName, t.OtherRole)
		}
		return nil
	},
}

var inboxHistoryCmd = &cobra.Command{
	Use:   "history <chat-id>",
	Short: "Show the recent messages of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := getClient()
		off, store := getOffline(ctx, c)
		defer store.Close()

		inbox := haven.NewInboxStore(c, off, nil)
		if err := inbox.LoadMessages(ctx, args[0]); err != nil {
			return err
		}
		for _, m := range inbox.Messages(args[0]) {
			marker := ""
			if m.Pending {
				marker = " (sending)"
			}
			fmt.Printf("[%s] %s: %s%s\n",
				m.CreatedAt.Local().Format("15:04"), m.SenderID, m.Body, marker)
		}
		return nil
	},
}

var inboxSendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>",
	Short: "Send a direct message",
	Long:  "Send a direct message. When offline, the message is queued and replayed by 'haven flush'.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := getClient()
		off, store := getOffline(ctx, c)
		defer store.Close()

		inbox := haven.NewInboxStore(c, off, nil)
		id, err := inbox.SendMessage(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		queued, _ := off.Queued(ctx)
		if len(queued) > 0 {
			fmt.Printf("Queued for delivery (%s)\n", id)
		} else {
			fmt.Printf("Sent (%s)\n", id)
		}
		return nil
	},
}

var inboxWatchCmd = &cobra.Command{
	Use:   "watch <chat-id>",
	Short: "Stream a thread live until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		c := getClient()
		off, store := getOffline(ctx, c)
		defer store.Close()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		loadEnv(cfg)

		feed := haven.NewFeedClient(c.BaseURL(), &haven.FeedConfig{
			Token:         cfg.Auth.Token,
			AutoReconnect: true,
		})
		inbox := haven.NewInboxStore(c, off, feed)

		unsubscribe, err := inbox.Subscribe(ctx, args[0])
		if err != nil {
			return err
		}
		defer unsubscribe()

		if err := feed.Connect(ctx); err != nil {
			return err
		}
		defer feed.Disconnect()

		if err := inbox.LoadMessages(ctx, args[0]); err != nil {
			return err
		}

		seen := make(map[string]bool)
		for _, m := range inbox.Messages(args[0]) {
			seen[m.ID] = true
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.SenderID, m.Body)
		}

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				for _, m := range inbox.Messages(args[0]) {
					if seen[m.ID] || m.Pending {
						continue
					}
					seen[m.ID] = true
					fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.SenderID, m.Body)
				}
			}
		}
	},
}
