package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Browse the user directory",
}

var usersSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search users by username",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var query string
		if len(args) == 1 {
			query = args[0]
		}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.SearchUsers(ctx, query)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			if len(resp.Users) == 0 {
				fmt.Println("No users found." + cacheNote(resp.FromCache))
				return nil
			}
			fmt.Printf("%-26s %s\n", "ID", "USERNAME")
			for _, u := range resp.Users {
				fmt.Printf("%-26s %s\n", u.UserID, u.Username)
			}
			if resp.FromCache {
				fmt.Println("(offline, from cache)")
			}
			return nil
		})
	},
}

var (
	avatarUsername string
	avatarOut      string
)

var avatarCmd = &cobra.Command{
	Use:   "avatar <url>",
	Short: "Fetch an avatar through the image cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.LoadAvatar(ctx, &rpc.LoadAvatarRequest{URL: args[0], Username: avatarUsername})
			if err != nil {
				return err
			}
			if avatarOut == "" {
				if jsonOutput {
					outputJSON(map[string]any{"key": resp.Key, "bytes": len(resp.Data)})
					return nil
				}
				fmt.Printf("%s: %d bytes\n", resp.Key, len(resp.Data))
				return nil
			}
			if err := os.WriteFile(avatarOut, resp.Data, 0600); err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Printf("Wrote %d bytes to %s\n", len(resp.Data), avatarOut)
			}
			return nil
		})
	},
}

func init() {
	avatarCmd.Flags().StringVar(&avatarUsername, "username", "", "owner of the avatar, used as the cache key")
	avatarCmd.Flags().StringVarP(&avatarOut, "out", "o", "", "write the image to this file")
	usersCmd.AddCommand(usersSearchCmd)
	rootCmd.AddCommand(usersCmd, avatarCmd)
}
