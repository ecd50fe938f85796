package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/maclap/cashtrack/internal/client"
	"github.com/maclap/cashtrack/internal/lock"
	"github.com/maclap/cashtrack/internal/profile"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, queue and drain status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(st)
				return nil
			}
			fmt.Printf("Profile:      %s\n", st.Profile)
			fmt.Printf("Status:       %s (network mode %s)\n", st.State, st.NetworkMode)
			if st.StorageError != "" {
				fmt.Printf("Storage:      UNAVAILABLE - %s\n", st.StorageError)
			}
			fmt.Printf("Pending:      %d\n", st.Pending)
			kinds := make([]string, 0, len(st.PendingByKind))
			for k := range st.PendingByKind {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Printf("  %-16s %d\n", k, st.PendingByKind[k])
			}
			fmt.Printf("Dead letters: %d\n", st.DeadLetters)
			if st.LastDrainAt != nil {
				fmt.Printf("Last drain:   %s (synced %d, failed %d)\n",
					st.LastDrainAt.Local().Format(time.DateTime), st.LastSuccess, st.LastFailed)
			} else {
				fmt.Println("Last drain:   never")
			}
			fmt.Printf("Totals:       %d drains, synced %d, failed %d\n", st.TotalCycles, st.TotalSuccess, st.TotalFailed)
			fmt.Printf("Uptime:       %s\n", time.Since(st.StartedAt).Round(time.Second))
			return nil
		})
	},
}

type profileInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List known profiles and whether their daemon is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := os.ReadDir(filepath.Join(profile.BaseDir(), "profiles"))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		infos := make([]profileInfo, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			info := profileInfo{Name: e.Name(), Path: profile.Dir(e.Name())}
			if pid, _, ok := lock.Holder(info.Path); ok {
				info.Running = true
				info.PID = pid
			}
			infos = append(infos, info)
		}
		if jsonFlag {
			outputJSON(infos)
			return nil
		}
		if len(infos) == 0 {
			fmt.Println("No profiles found.")
			return nil
		}
		for _, p := range infos {
			running := "stopped"
			if p.Running {
				running = fmt.Sprintf("running, pid %d", p.PID)
			}
			fmt.Printf("%-20s %s (%s)\n", p.Name, p.Path, running)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, profilesCmd)
}
