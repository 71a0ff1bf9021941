package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	watchPrefixes []string
	watchAll      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Long: "Stream daemon events until interrupted.\n" +
		"By default only new message notifications and chat list changes are shown;\n" +
		"use --all to see everything.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStream(func(ctx context.Context, c *rpc.Client) error {
			prefixes := watchPrefixes
			if watchAll {
				prefixes = []string{""}
			}
			stream, err := c.Watch(ctx, prefixes...)
			if err != nil {
				return err
			}
			for {
				evt, err := stream.Recv()
				if err != nil {
					if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
						return nil
					}
					return err
				}
				if jsonOutput {
					outputJSON(evt)
					continue
				}
				fmt.Printf("%s %-22s %s\n", evt.OccurredAt.Local().Format("15:04:05"), evt.Kind, describeEvent(evt))
			}
		})
	},
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchPrefixes, "prefix", nil, "event kind prefixes to show (repeatable)")
	watchCmd.Flags().BoolVar(&watchAll, "all", false, "show every event kind")
	rootCmd.AddCommand(watchCmd)
}

// describeEvent renders the payload of the known kinds in one line.
func describeEvent(evt *rpc.Event) string {
	switch evt.Kind {
	case bus.KindNewMessages:
		var p bus.NewMessages
		if json.Unmarshal(evt.Payload, &p) == nil {
			return fmt.Sprintf("%d chat(s) with new messages: %s", p.Count, strings.Join(p.Chats, ", "))
		}
	case bus.KindChatsChanged:
		var p bus.ChatsChanged
		if json.Unmarshal(evt.Payload, &p) == nil {
			return fmt.Sprintf("%d chats%s", p.Count, cacheNote(p.FromCache))
		}
	case bus.KindChatUpdated:
		var p bus.ChatUpdated
		if json.Unmarshal(evt.Payload, &p) == nil {
			return fmt.Sprintf("chat %s, %d messages%s", p.ChatID, p.Messages, cacheNote(p.FromCache))
		}
	case bus.KindSessionChanged:
		var p bus.SessionChanged
		if json.Unmarshal(evt.Payload, &p) == nil {
			if p.LoggedIn {
				return "logged in as " + p.Username
			}
			return "logged out"
		}
	}
	return string(evt.Payload)
}
