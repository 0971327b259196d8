// Package app wires the chat client's services together. The entrypoints
// build a Dependencies value from configuration and pass it down; nothing
// below this package reaches for globals.
package app

import (
	"github.com/spf13/afero"

	"github.com/tradepost/chatkit/internal/config"
	"github.com/tradepost/chatkit/internal/credentials"
	"github.com/tradepost/chatkit/internal/history"
	"github.com/tradepost/chatkit/internal/pubsub"
	"github.com/tradepost/chatkit/internal/session"
	"github.com/tradepost/chatkit/internal/store"
	"github.com/tradepost/chatkit/internal/transport"
)

// Dependencies holds the core services required by the chat client.
type Dependencies struct {
	Bus         *pubsub.WatermillBridge
	Transport   transport.Adapter
	History     *history.Client
	Store       *store.Store
	Credentials *credentials.Store
	Controller  *session.Controller
}

// New builds the full service graph for one session. The caller owns the
// lifecycle: Controller.Start to connect, Close to tear everything down.
func New(cfg *config.Config, cred transport.Credential) *Dependencies {
	bus := pubsub.NewWatermillBridge()
	adapter := transport.NewWSAdapter()
	historyClient := history.NewClient(cfg.APIBaseURL, cred.Token)
	messageStore := store.New()

	controller := session.New(session.Dependencies{
		Transport:  adapter,
		History:    historyClient,
		Store:      messageStore,
		Publisher:  bus,
		Credential: cred,
	})

	return &Dependencies{
		Bus:         bus,
		Transport:   adapter,
		History:     historyClient,
		Store:       messageStore,
		Credentials: credentials.NewStore(afero.NewOsFs(), cfg.ConfigDir),
		Controller:  controller,
	}
}

// Close shuts the session down and releases the bus.
func (d *Dependencies) Close() error {
	d.Controller.Shutdown()
	return d.Bus.Close()
}
