package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/maclap/cashtrack/internal/client"
	"github.com/maclap/cashtrack/internal/config"
	"github.com/maclap/cashtrack/internal/profile"
	"github.com/spf13/cobra"
	grpcstatus "google.golang.org/grpc/status"
)

var (
	profileFlag string
	jsonFlag    bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "cashctl",
	Short: "Control a running cashd daemon",
	Long: `cashctl talks to the cashd daemon of a profile over its Unix socket.

Records submitted while the remote store is unreachable are kept in the
daemon's offline queue and committed by the next drain.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "RPC timeout")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		os.Exit(1)
	}
}

// resolveProfile applies the same precedence as cashd.
func resolveProfile() (string, error) {
	_ = godotenv.Load()
	_ = godotenv.Load(profile.EnvPath())
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return "", err
	}
	name := profile.Resolve(profileFlag, cfg)
	if err := profile.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// withClient connects to the profile's daemon and runs fn with a
// timeout-bound context.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	name, err := resolveProfile()
	if err != nil {
		return err
	}
	if _, err := os.Stat(profile.SocketPath(name)); err != nil {
		return fmt.Errorf("daemon for profile %q is not running (start it with: cashd --profile %s)", name, name)
	}
	c, err := client.New(profile.SocketPath(name))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()
	return fn(ctx, c)
}

func describe(err error) string {
	if st, ok := grpcstatus.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
