package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.ListChats(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			if len(resp.Chats) == 0 {
				fmt.Println("No chats." + cacheNote(resp.FromCache))
				return nil
			}
			fmt.Printf("%-26s %-18s %-16s %s\n", "ID", "WITH", "LAST", "PREVIEW")
			for _, ch := range resp.Chats {
				fmt.Printf("%-26s %-18s %-16s %s\n", ch.ID, ch.CounterpartUsername, formatTime(ch.Recency()), truncate(ch.LastMessagePreview, 48))
			}
			if resp.FromCache {
				fmt.Println(strings.TrimSpace(cacheNote(true)))
			}
			return nil
		})
	},
}

var (
	followFlag     bool
	followInterval time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat <chat-id>",
	Short: "Show the messages of a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if followFlag {
			return followChat(args[0])
		}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.GetChat(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			printChat(resp.Chat, resp.FromCache)
			return nil
		})
	},
}

// followChat prints the chat on every refresh until interrupted.
func followChat(chatID string) error {
	return withStream(func(ctx context.Context, c *rpc.Client) error {
		stream, err := c.FollowChat(ctx, &rpc.FollowChatRequest{ChatID: chatID, IntervalMs: followInterval.Milliseconds()})
		if err != nil {
			return err
		}
		var shown int
		for {
			upd, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
					return nil
				}
				return err
			}
			if jsonOutput {
				outputJSON(upd)
				continue
			}
			if upd.Error != "" {
				fmt.Fprintf(os.Stderr, "refresh failed: %s\n", upd.Error)
				continue
			}
			if upd.Initial || shown > len(upd.Chat.Messages) {
				printChat(upd.Chat, upd.FromCache)
				shown = len(upd.Chat.Messages)
				continue
			}
			for _, m := range upd.Chat.Messages[shown:] {
				printMessage(upd.Chat, m)
			}
			shown = len(upd.Chat.Messages)
		}
	})
}

var sendFile string

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>",
	Short: "Send a message to a chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &rpc.SendMessageRequest{ChatID: args[0], Content: args[1]}
		if sendFile != "" {
			att, err := readAttachment(sendFile)
			if err != nil {
				return err
			}
			req.Attachment = att
		}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.SendMessage(ctx, req)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			fmt.Println("Sent.")
			return nil
		})
	},
}

var newCmd = &cobra.Command{
	Use:   "new <user-id> <text>",
	Short: "Message a user, opening a chat when none exists",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, text := args[0], args[1]
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			found, err := c.FindChatByUser(ctx, userID)
			if err != nil {
				return err
			}
			var resp *rpc.SendResponse
			if found.Found {
				resp, err = c.SendMessage(ctx, &rpc.SendMessageRequest{ChatID: found.Chat.ID, Content: text})
				if err == nil && resp.ChatID == "" {
					resp.ChatID = found.Chat.ID
				}
			} else {
				resp, err = c.CreateChat(ctx, &rpc.CreateChatRequest{UserID: userID, Content: text})
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(resp)
				return nil
			}
			if resp.ChatID != "" {
				fmt.Printf("Sent to chat %s.\n", resp.ChatID)
			} else {
				fmt.Println("Sent.")
			}
			return nil
		})
	},
}

func init() {
	chatCmd.Flags().BoolVarP(&followFlag, "follow", "f", false, "keep refreshing until interrupted")
	chatCmd.Flags().DurationVar(&followInterval, "interval", 0, "refresh interval when following (default from daemon config)")
	sendCmd.Flags().StringVar(&sendFile, "file", "", "attach a file")
	rootCmd.AddCommand(chatsCmd, chatCmd, sendCmd, newCmd)
}

func printChat(d model.ChatDetail, fromCache bool) {
	fmt.Printf("Chat %s with %s%s\n", d.ID, d.CounterpartUsername, cacheNote(fromCache))
	if len(d.Messages) == 0 {
		fmt.Println("  (no messages)")
	}
	for _, m := range d.Messages {
		printMessage(d, m)
	}
}

func printMessage(d model.ChatDetail, m model.Message) {
	from := "me"
	if m.SenderID == d.CounterpartUserID {
		from = d.CounterpartUsername
	}
	body := m.Content
	switch {
	case m.IsDeleted:
		body = "(deleted)"
	case m.AttachmentURL != "":
		body = strings.TrimSpace(body + " [" + m.AttachmentMimeType + " " + m.AttachmentURL + "]")
	}
	fmt.Printf("  [%s] %s: %s\n", formatTime(m.CreatedAt), from, body)
}

// readAttachment loads a file and guesses its MIME type from the extension,
// falling back to content sniffing.
func readAttachment(path string) (*model.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	return &model.Attachment{Data: data, Filename: filepath.Base(path), MimeType: mt}, nil
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
