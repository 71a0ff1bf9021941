package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/status"
)

var (
	sessionFlag string
	jsonOutput  bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "chatsyncctl",
	Short: "Control a chatsync daemon",
	Long: "Command-line client of the chatsync daemon.\n" +
		"Reads are answered from the network when possible and from the\n" +
		"daemon's offline cache otherwise.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 20*time.Second, "deadline of unary calls")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if s, ok := status.FromError(err); ok {
			fmt.Fprintf(os.Stderr, "error: %s (%s)\n", s.Message(), s.Code())
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// sessionName resolves and validates the target session.
func sessionName() (string, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// connect dials the session daemon, failing early when none is running.
func connect() (*rpc.Client, error) {
	name, err := sessionName()
	if err != nil {
		return nil, err
	}
	if _, held, err := lock.Holder(session.LockPath(name)); err == nil && !held {
		return nil, fmt.Errorf("no daemon running for session %q (start chatsyncd --session %s)", name, name)
	}
	return rpc.Dial(session.SocketPath(name))
}

// withClient runs fn with a connected client and a deadline-bound context.
func withClient(fn func(ctx context.Context, c *rpc.Client) error) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()
	return fn(ctx, c)
}

// withStream is withClient for long-running streams: no deadline, canceled
// on SIGINT or SIGTERM.
func withStream(fn func(ctx context.Context, c *rpc.Client) error) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, c)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func cacheNote(fromCache bool) string {
	if fromCache {
		return " (offline, from cache)"
	}
	return ""
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
