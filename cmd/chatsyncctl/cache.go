package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the offline cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the cache holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.CacheStats(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Chats:        %d\n", resp.Chats)
			fmt.Printf("Chat details: %d\n", resp.ChatDetails)
			fmt.Printf("Users:        %d\n", resp.Users)
			fmt.Printf("Seen:         %d\n", resp.Seen)
			fmt.Printf("Images:       %d bytes\n", resp.ImageBytes)
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:       "clear [all|chats|chat_details|users|images]",
	Short:     "Empty cached data (default all)",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"all", "chats", "chat_details", "users", "images"},
	RunE: func(cmd *cobra.Command, args []string) error {
		target := "all"
		if len(args) == 1 {
			target = args[0]
		}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.ClearCache(ctx, target)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Cleared %s.\n", resp.Target)
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
