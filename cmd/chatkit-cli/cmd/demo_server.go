package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradepost/chatkit/internal/devserver"
	"github.com/tradepost/chatkit/internal/domain"
	"github.com/tradepost/chatkit/internal/logging"
)

var (
	demoAddr    string
	demoChatter time.Duration
)

var demoServerCmd = &cobra.Command{
	Use:   "demo-server",
	Short: "Run a self-contained fake backend",
	Long: `Run the in-memory fake of the marketplace chat backend. Two users
are pre-registered (tokens "alice-token" and "bob-token") sharing room
"demo". Point a chat client at it:

  CHATKIT_API_URL=http://localhost:8088 \
  CHATKIT_WS_URL=ws://localhost:8088/ws \
  CHATKIT_TOKEN=alice-token CHATKIT_USER_ID=alice \
  chatkit chat --room demo`,
	RunE: runDemoServer,
}

func runDemoServer(cmd *cobra.Command, args []string) error {
	logging.New("text", "info")

	srv := devserver.New()
	srv.AddUser("alice", "alice-token")
	srv.AddUser("bob", "bob-token")
	srv.AddRoom(domain.Room{
		ID:           "demo",
		Kind:         domain.RoomKindListing,
		Participants: []string{"alice", "bob"},
		ListingID:    "listing-42",
	})
	srv.SeedMessage(domain.Message{RoomID: "demo", AuthorID: "bob", Body: "Is this still available?", Type: domain.MessageTypeText})
	srv.SeedMessage(domain.Message{RoomID: "demo", AuthorID: "alice", Body: "Yes, pickup only though.", Type: domain.MessageTypeText})

	if demoChatter > 0 {
		go chatter(srv, demoChatter)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(demoAddr) }()
	fmt.Printf("demo backend listening on %s\n", demoAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// chatter periodically posts as bob so a connected client has something to
// watch.
func chatter(srv *devserver.Server, every time.Duration) {
	lines := []string{
		"Could you do 40?",
		"What's the condition like?",
		"I can pick it up tomorrow.",
		"Any scratches on the back?",
	}
	for i := 0; ; i++ {
		time.Sleep(every)
		srv.BroadcastMessage("demo", "bob", domain.OutboundMessage{
			Body: lines[i%len(lines)],
			Type: domain.MessageTypeText,
		})
	}
}

func init() {
	demoServerCmd.Flags().StringVar(&demoAddr, "addr", ":8088", "Listen address")
	demoServerCmd.Flags().DurationVar(&demoChatter, "chatter", 0, "Post a demo message at this interval (0 disables)")
	rootCmd.AddCommand(demoServerCmd)
}
