package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	haven "github.com/havenyouth/haven-go"
)

var (
	checkinTags []string
	checkinNote string
)

func init() {
	rootCmd.AddCommand(pulseCmd)
	pulseCmd.AddCommand(pulseTodayCmd)
	pulseCmd.AddCommand(pulseCheckinCmd)
	pulseCmd.AddCommand(pulseRecapCmd)

	pulseCheckinCmd.Flags().StringSliceVar(&checkinTags, "tags", nil, "feeling tags")
	pulseCheckinCmd.Flags().StringVar(&checkinNote, "note", "", "free-text note")
}

var pulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Daily mood check-in",
}

var pulseTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's prompt and check-in status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pulse := haven.NewPulseStore(getClient())

		if err := pulse.LoadToday(ctx); err != nil {
			return err
		}
		if p := pulse.Prompt(); p != nil {
			fmt.Printf("Prompt: %s\n", p.Text)
		} else {
			fmt.Println("No prompt today.")
		}
		if pulse.CheckedIn() {
			fmt.Println("Already checked in today.")
		} else {
			fmt.Println("Not checked in yet.")
		}
		return nil
	},
}

var pulseCheckinCmd = &cobra.Command{
	Use:   "checkin <mood 1-5>",
	Short: "Record today's mood check-in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mood, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("mood must be a number: %w", err)
		}

		ctx := context.Background()
		pulse := haven.NewPulseStore(getClient())

		if err := pulse.LoadToday(ctx); err != nil {
			return err
		}
		pulse.SetMood(mood)
		for _, tag := range checkinTags {
			pulse.ToggleTag(tag)
		}
		pulse.SetNote(checkinNote)

		if err := pulse.SaveCheckIn(ctx); err != nil {
			return err
		}
		fmt.Println("Checked in.")
		return nil
	},
}

var pulseRecapCmd = &cobra.Command{
	Use:   "recap",
	Short: "Build last week's activity recap if it is missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		pulse := haven.NewPulseStore(getClient())
		if err := pulse.EnsureWeeklyRecap(context.Background()); err != nil {
			return err
		}
		fmt.Println("Weekly recap is up to date.")
		return nil
	},
}
