package main

import (
	"context"
	"fmt"
	"time"

	"github.com/maclap/cashtrack/internal/api"
	"github.com/maclap/cashtrack/internal/client"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the offline queue now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			res, err := c.SyncNow(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(res)
				return nil
			}
			switch {
			case !res.Ran:
				fmt.Println("A drain is already in progress.")
			case !res.Online:
				fmt.Println("Offline: nothing was sent.")
			default:
				fmt.Printf("Synced %d, failed %d\n", res.Success, res.Failed)
			}
			return nil
		})
	},
}

var netCmd = &cobra.Command{
	Use:       "net <auto|online|offline>",
	Short:     "Force connectivity on or off, or return to probing",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"auto", "online", "offline"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.SetNetworkMode(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			state := "offline"
			if resp.Online {
				state = "online"
			}
			fmt.Printf("Network mode %s: %s\n", resp.Mode, state)
			return nil
		})
	},
}

var watchPrefix string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(_ context.Context, c *client.Client) error {
			err := c.Watch(cmd.Context(), watchPrefix, func(evt *api.Event) error {
				if jsonFlag {
					outputJSON(evt)
					return nil
				}
				fmt.Printf("%s %-22s %s\n", evt.At.Local().Format(time.TimeOnly), evt.Kind, evt.Payload)
				return nil
			})
			if cmd.Context().Err() != nil {
				return nil // interrupted
			}
			return err
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "only show events whose kind starts with this prefix (e.g. sync.)")
	rootCmd.AddCommand(syncCmd, netCmd, watchCmd)
}
