package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/spf13/cobra"
)

// EnvPassword supplies the login password without a prompt.
const EnvPassword = "CHATSYNC_PASSWORD"

var (
	loginPassword string
	loginRemember bool
)

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in and start polling",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		remember := loginRemember
		if !cmd.Flags().Changed("remember") {
			remember = defaultRemember()
		}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Login(ctx, &rpc.LoginRequest{Email: args[0], Password: password, Remember: remember})
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Logged in as %s", resp.Username)
			if resp.Remembered {
				fmt.Print(" (remembered)")
			}
			fmt.Println()
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and clear the offline cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Logout(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			fmt.Println(resp.Message)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, connectivity and fetch states",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.GetStatus(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Session:  %s\n", resp.Session)
			if resp.LoggedIn {
				fmt.Printf("User:     %s (%s)\n", resp.Username, resp.UserID)
			} else {
				fmt.Println("User:     not logged in")
			}
			fmt.Printf("Online:   %v\n", resp.Online)
			fmt.Printf("Polling:  %v\n", resp.Polling)
			fmt.Printf("Uptime:   %dms\n", resp.UptimeMs)
			if len(resp.Unread) > 0 {
				fmt.Printf("Unread:   %s\n", strings.Join(resp.Unread, ", "))
			}
			for _, r := range resp.Resources {
				line := fmt.Sprintf("  %-12s %-10s fresh=%v%s", r.Resource, r.State, r.Fresh, cacheNote(r.FromCache))
				if r.Error != "" {
					line += "  " + r.Error
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (default: $"+EnvPassword+" or stdin)")
	loginCmd.Flags().BoolVar(&loginRemember, "remember", true, "keep the session across daemon restarts (default from config)")
	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
}

func readPassword() (string, error) {
	if loginPassword != "" {
		return loginPassword, nil
	}
	if v := os.Getenv(EnvPassword); v != "" {
		return v, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}

// defaultRemember reads [session] remember from the config file.
func defaultRemember() bool {
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return true
	}
	return cfg.Session.Remember
}
