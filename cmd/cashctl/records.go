package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/maclap/cashtrack/internal/client"
	"github.com/maclap/cashtrack/internal/record"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <kind> <json|->",
	Short: "Submit a record (kinds: transaction, pendingPayment, meterReading, note)",
	Long: `Submit a record to the daemon. It is committed straight away when the
remote store is reachable and queued otherwise. Pass "-" to read the JSON
payload from stdin.`,
	Example: `  cashctl submit transaction '{"date":"2026-10-17","type":"in","amount":120,"remark":"sale","user":"ana","timestamp":1760659200000}'`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := record.ParseKind(args[0])
		if err != nil {
			return err
		}
		raw := []byte(args[1])
		if args[1] == "-" {
			if raw, err = io.ReadAll(os.Stdin); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
		}
		if !json.Valid(raw) {
			return fmt.Errorf("payload is not valid JSON")
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Submit(ctx, kind.String(), raw)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			if resp.Queued {
				fmt.Printf("Queued offline as %s\n", resp.ID)
			} else {
				fmt.Printf("Saved as %s\n", resp.RemoteID)
			}
			return nil
		})
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List records waiting to be synced",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			recs, err := c.Pending(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(recs)
				return nil
			}
			if len(recs) == 0 {
				fmt.Println("Queue is empty.")
				return nil
			}
			for _, r := range recs {
				line := fmt.Sprintf("%-34s %-15s %s  retries=%d",
					r.ID, r.Kind, time.UnixMilli(r.EnqueuedAt).Format(time.DateTime), r.RetryCount)
				if r.LastError != "" {
					line += "  last error: " + strings.TrimSpace(r.LastError)
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(submitCmd, pendingCmd)
}
