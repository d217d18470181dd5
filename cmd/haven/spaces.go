package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	haven "github.com/havenyouth/haven-go"
)

var postMediaURL string

func init() {
	rootCmd.AddCommand(spacesCmd)
	spacesCmd.AddCommand(spacesCohortsCmd)
	spacesCmd.AddCommand(spacesChannelsCmd)
	spacesCmd.AddCommand(spacesPostsCmd)
	spacesCmd.AddCommand(spacesPostCmd)
	spacesCmd.AddCommand(spacesChatCmd)
	spacesCmd.AddCommand(spacesSayCmd)

	spacesPostCmd.Flags().StringVar(&postMediaURL, "media", "", "attach a media URL")
}

var spacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "Cohort spaces: posts and channel chat",
}

func newSpacesStore(ctx context.Context) (*haven.SpacesStore, func()) {
	c := getClient()
	off, store := getOffline(ctx, c)
	gate := haven.NewGate(c)
	return haven.NewSpacesStore(c, off, gate, nil), func() { store.Close() }
}

var spacesCohortsCmd = &cobra.Command{
	Use:   "cohorts",
	Short: "List my cohorts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, done := newSpacesStore(ctx)
		defer done()

		if err := s.LoadCohorts(ctx); err != nil {
			return err
		}
		for _, c := range s.Cohorts() {
			state := "inactive"
			if c.Active {
				state = "active"
			}
			fmt.Printf("%s  %s (%s)\n", c.ID, c.Name, state)
		}
		return nil
	},
}

var spacesChannelsCmd = &cobra.Command{
	Use:   "channels <cohort-id>",
	Short: "List the channels of a cohort",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, done := newSpacesStore(ctx)
		defer done()

		if err := s.LoadChannels(ctx, args[0]); err != nil {
			return err
		}
		for _, ch := range s.Channels(args[0]) {
			fmt.Printf("%s  %s [%s]\n", ch.ID, ch.Name, ch.Type)
		}
		return nil
	},
}

var spacesPostsCmd = &cobra.Command{
	Use:   "posts <channel-id>",
	Short: "Show the latest posts of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, done := newSpacesStore(ctx)
		defer done()

		if err := s.LoadPosts(ctx, args[0]); err != nil {
			return err
		}
		for _, p := range s.Posts(args[0]) {
			name := p.AuthorID
			if profile, ok := s.Author(p.AuthorID); ok {
				name = profile.Nickname
			}
			fmt.Printf("[%s] %s: %s\n", p.CreatedAt.Local().Format("Jan 2 15:04"), name, p.Content)
			if p.MediaURL != "" {
				fmt.Printf("         media: %s\n", p.MediaURL)
			}
		}
		return nil
	},
}

var spacesPostCmd = &cobra.Command{
	Use:   "post <channel-id> <text>",
	Short: "Create a community post",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, done := newSpacesStore(ctx)
		defer done()

		id, err := s.InsertPost(ctx, args[0], args[1], postMediaURL)
		if err != nil {
			return err
		}
		fmt.Printf("Posted (%s)\n", id)
		return nil
	},
}

var spacesChatCmd = &cobra.Command{
	Use:   "chat <channel-id>",
	Short: "Show the latest channel chat messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, done := newSpacesStore(ctx)
		defer done()

		if err := s.LoadMessages(ctx, args[0]); err != nil {
			return err
		}
		for _, m := range s.ChannelMessages(args[0]) {
			if m.IsHidden {
				continue
			}
			name := m.UserID
			if profile, ok := s.Author(m.UserID); ok {
				name = profile.Nickname
			}
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), name, m.Content)
		}
		return nil
	},
}

var spacesSayCmd = &cobra.Command{
	Use:   "say <channel-id> <text>",
	Short: "Send a channel chat message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, done := newSpacesStore(ctx)
		defer done()

		id, err := s.InsertMessage(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Sent (%s)\n", id)
		return nil
	},
}
