package main

import (
	"context"
	"fmt"
	"time"

	"github.com/maclap/cashtrack/internal/client"
	"github.com/spf13/cobra"
)

var deadCmd = &cobra.Command{
	Use:   "dead",
	Short: "Inspect records that exhausted their retry budget",
}

var deadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letters, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			dead, err := c.DeadLetters(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(dead)
				return nil
			}
			if len(dead) == 0 {
				fmt.Println("No dead letters.")
				return nil
			}
			for _, d := range dead {
				fmt.Printf("%-34s %-15s died %s after %d attempts: %s\n",
					d.ID, d.Kind, time.UnixMilli(d.DeadAt).Format(time.DateTime), d.RetryCount, d.LastError)
			}
			return nil
		})
	},
}

var deadRequeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Move a dead letter back into the queue with a fresh retry budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			id, err := c.Requeue(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(map[string]string{"id": id})
				return nil
			}
			fmt.Printf("Requeued as %s\n", id)
			return nil
		})
	},
}

var deadPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all dead letters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			n, err := c.Purge(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(map[string]int64{"purged": n})
				return nil
			}
			fmt.Printf("Purged %d dead letters\n", n)
			return nil
		})
	},
}

func init() {
	deadCmd.AddCommand(deadListCmd, deadRequeueCmd, deadPurgeCmd)
	rootCmd.AddCommand(deadCmd)
}
