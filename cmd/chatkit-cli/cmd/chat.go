package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tradepost/chatkit/internal/app"
	"github.com/tradepost/chatkit/internal/config"
	"github.com/tradepost/chatkit/internal/credentials"
	"github.com/tradepost/chatkit/internal/domain"
	"github.com/tradepost/chatkit/internal/logging"
	"github.com/tradepost/chatkit/internal/pubsub"
	"github.com/tradepost/chatkit/internal/session"
	"github.com/tradepost/chatkit/internal/transport"
)

var chatRoomID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a room and chat interactively",
	Long: `Open a room, print live messages as they arrive and send what you
type. Lines starting with "/" are commands:

  /read        Mark the newest message read
  /retry <id>  Resend a failed message
  /quit        Leave the room and exit`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	logging.New(cfg.LogFormat, cfg.LogLevel)

	cred, err := resolveCredential(cfg)
	if err != nil {
		return err
	}

	deps := app.New(cfg, cred)
	defer deps.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := subscribeRendering(ctx, deps, cred.UserID); err != nil {
		return err
	}

	if err := deps.Controller.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect failed, continuing degraded: %v\n", err)
	}
	if err := deps.Controller.OpenRoom(ctx, chatRoomID); err != nil {
		return fmt.Errorf("failed to open room %s: %w", chatRoomID, err)
	}

	fmt.Printf("-- room %s open, %d messages loaded --\n", chatRoomID, len(deps.Controller.Messages(chatRoomID)))

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return deps.Controller.CloseRoom(chatRoomID)
		case line == "/read":
			msgs := deps.Controller.Messages(chatRoomID)
			if len(msgs) > 0 {
				_ = deps.Controller.MarkRead(ctx, chatRoomID, msgs[len(msgs)-1].ID)
			}
		case strings.HasPrefix(line, "/retry "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/retry "))
			if _, err := deps.Controller.ResendFailed(ctx, chatRoomID, id); err != nil {
				fmt.Fprintf(os.Stderr, "retry failed: %v\n", err)
			}
		default:
			out := domain.OutboundMessage{Body: line, Type: domain.MessageTypeText}
			if _, err := deps.Controller.SendMessage(ctx, chatRoomID, out); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
	}
	return scanner.Err()
}

// subscribeRendering attaches the terminal renderer to the consumer bus.
func subscribeRendering(ctx context.Context, deps *app.Dependencies, selfID string) error {
	if _, err := pubsub.SubscribeTyped(ctx, deps.Bus, session.EventMessageUpserted, func(_ context.Context, up session.MessageUpdate) error {
		marker := ""
		switch up.Message.Delivery {
		case domain.DeliveryPending:
			marker = " (sending)"
		case domain.DeliveryFailed:
			marker = " (FAILED, /retry " + up.Message.ID + ")"
		}
		author := up.Message.AuthorID
		if author == selfID {
			author = "you"
		}
		fmt.Printf("[%s] %s: %s%s\n", up.Message.CreatedAt.Format("15:04:05"), author, up.Message.Body, marker)
		return nil
	}); err != nil {
		return err
	}

	if _, err := pubsub.SubscribeTyped(ctx, deps.Bus, session.EventTypingChanged, func(_ context.Context, up session.TypingUpdate) error {
		if len(up.Users) > 0 {
			fmt.Printf("-- typing: %s --\n", strings.Join(up.Users, ", "))
		}
		return nil
	}); err != nil {
		return err
	}

	_, err := pubsub.SubscribeTyped(ctx, deps.Bus, session.EventStateChanged, func(_ context.Context, up session.StateUpdate) error {
		fmt.Printf("-- session %s (connection %s) --\n", up.State, up.Connection)
		return nil
	})
	return err
}

// resolveCredential prefers the environment token, falling back to the saved
// credential file.
func resolveCredential(cfg *config.Config) (transport.Credential, error) {
	if cfg.Token != "" && cfg.UserID != "" {
		return transport.Credential{URL: cfg.WSURL, Token: cfg.Token, UserID: cfg.UserID}, nil
	}

	store := credentials.NewStore(afero.NewOsFs(), cfg.ConfigDir)
	cred, found, err := store.Load()
	if err != nil {
		return transport.Credential{}, err
	}
	if !found {
		return transport.Credential{}, fmt.Errorf("no credential: run \"chatkit login\" or set CHATKIT_TOKEN and CHATKIT_USER_ID")
	}
	if cred.URL == "" {
		cred.URL = cfg.WSURL
	}
	return cred, nil
}

func init() {
	chatCmd.Flags().StringVar(&chatRoomID, "room", "", "Room id to open")
	_ = chatCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(chatCmd)
}
