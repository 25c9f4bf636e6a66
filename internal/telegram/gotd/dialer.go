// Package gotd implements the gateway's protocol capability over github.com/gotd/td.
package gotd

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/telegram"
)

// Dialer opens MTProto connections with one app's credentials.
type Dialer struct {
	appID   int
	appHash string
	log     zerolog.Logger
}

// NewDialer returns a Dialer for the app registered at my.telegram.org.
func NewDialer(appID int, appHash string, log zerolog.Logger) *Dialer {
	return &Dialer{appID: appID, appHash: appHash, log: log.With().Str("component", "mtproto").Logger()}
}

// Conn is one running gotd client. The client runs on its own goroutine until Close.
type Conn struct {
	client  *tgclient.Client
	api     *tg.Client
	storage *memoryStorage
	gaps    *updates.Manager
	appID   int
	appHash string
	log     zerolog.Logger

	handler atomic.Pointer[func(telegram.IncomingMessage)]
	closing atomic.Bool

	cancel    context.CancelFunc
	ready     chan struct{}
	done      chan struct{}
	runErr    error
	closeOnce sync.Once
}

var _ telegram.Conn = (*Conn)(nil)

// Dial starts a client over session and returns once it is connected. ctx bounds only the connect.
func (d *Dialer) Dial(ctx context.Context, session []byte) (telegram.Conn, error) {
	dispatcher := tg.NewUpdateDispatcher()
	gaps := updates.New(updates.Config{Handler: dispatcher})
	storage := newMemoryStorage(session)
	client := tgclient.NewClient(d.appID, d.appHash, tgclient.Options{
		SessionStorage: storage,
		UpdateHandler:  gaps,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		client:  client,
		api:     client.API(),
		storage: storage,
		gaps:    gaps,
		appID:   d.appID,
		appHash: d.appHash,
		log:     d.log,
		cancel:  cancel,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.deliver(e, u.Message)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.deliver(e, u.Message)
		return nil
	})

	go func() {
		defer close(c.done)
		c.runErr = client.Run(runCtx, func(ctx context.Context) error {
			close(c.ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-c.ready:
		return c, nil
	case <-c.done:
		cancel()
		return nil, fmt.Errorf("gotd: connect: %w", c.runErr)
	case <-ctx.Done():
		cancel()
		<-c.done
		return nil, ctx.Err()
	}
}

// Close stops the client and waits for its goroutine.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.cancel()
		<-c.done
	})
	return nil
}

// Session returns the session gotd last stored.
func (c *Conn) Session(ctx context.Context) ([]byte, error) {
	data, err := c.storage.LoadSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("gotd: session not stored yet: %w", err)
	}
	return data, nil
}

// Listen runs the update gap manager so new messages reach handler. It returns nil after Close
// and the client's error if the connection ends on its own.
func (c *Conn) Listen(ctx context.Context, handler func(telegram.IncomingMessage)) error {
	self, err := c.client.Self(ctx)
	if err != nil {
		return fmt.Errorf("gotd: self: %w", err)
	}
	c.handler.Store(&handler)
	defer c.handler.Store(nil)

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.gaps.Run(lctx, c.api, self.ID, updates.AuthOptions{})
	}()

	select {
	case <-c.done:
		cancel()
		<-errCh
		if c.closing.Load() {
			return nil
		}
		return fmt.Errorf("gotd: connection ended: %w", c.runErr)
	case err := <-errCh:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
}

func (c *Conn) deliver(e tg.Entities, m tg.MessageClass) {
	msg, ok := m.(*tg.Message)
	if !ok || msg.Out {
		return
	}
	h := c.handler.Load()
	if h == nil {
		return
	}
	(*h)(incoming(e, msg))
}
