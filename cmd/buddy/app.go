package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/chat"
	"github.com/eldtechnologies/buddychat/internal/config"
	"github.com/eldtechnologies/buddychat/internal/models"
	"github.com/eldtechnologies/buddychat/internal/realtime"
	"github.com/eldtechnologies/buddychat/internal/remote"
	"github.com/eldtechnologies/buddychat/internal/session"
	"github.com/eldtechnologies/buddychat/internal/store"
)

const connectTimeout = 15 * time.Second

var errNotLoggedIn = errors.New("not logged in, run `buddy login <email> <password>` first")

// app wires the client components together for one CLI invocation.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	credentials store.CredentialStore
	client      *remote.Client
	session     *session.Manager

	// Set by requireLogin.
	user    *models.User
	channel *realtime.Channel
	engine  *chat.Engine
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	creds, err := store.Open(ctx, cfg.CredentialStoreURL, cfg.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	client := remote.NewClient(cfg.APIURL, cfg.HTTPTimeout, logger)
	sess := session.NewManager(client, creds, cfg.Platform, logger)
	client.Token = sess.Token
	client.OnUnauthorized = sess.HandleUnauthorized

	return &app{
		cfg:         cfg,
		logger:      logger,
		credentials: creds,
		client:      client,
		session:     sess,
	}, nil
}

func (a *app) Close() error {
	return a.credentials.Close()
}

// requireLogin validates the stored credential before any protected command
// runs, then builds the channel and the chat engine for that identity.
func (a *app) requireLogin(ctx context.Context) error {
	user, err := a.session.RefreshProfile(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotLoggedIn) || remote.IsUnauthorized(err) {
			return errNotLoggedIn
		}
		return fmt.Errorf("checking session: %w", err)
	}

	token, err := a.session.Token(ctx)
	if err != nil {
		return err
	}

	a.user = user
	a.channel = realtime.New(realtime.Options{
		URL:               a.cfg.SocketURL,
		Token:             token,
		ReconnectDelay:    a.cfg.ReconnectDelay,
		ReconnectAttempts: a.cfg.ReconnectAttempts,
		Logger:            a.logger,
	})
	a.engine = chat.NewEngine(a.client, a.channel, user.ID, a.cfg.PageSize, a.logger)
	a.engine.Attach(a.channel)

	a.session.OnChange(func(s session.State) {
		if !s.LoggedIn {
			a.engine.Reset("")
		}
	})
	return nil
}

// connect runs the channel in the background and waits for the first
// successful handshake. The returned channel yields Run's result.
func (a *app) connect(ctx context.Context) (<-chan error, error) {
	connected := make(chan struct{}, 1)
	a.channel.OnState(func(s realtime.State) {
		if s.Connected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	done := make(chan error, 1)
	go func() { done <- a.channel.Run(ctx) }()

	select {
	case <-connected:
		return done, nil
	case err := <-done:
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = errors.New("channel stopped")
		}
		return nil, fmt.Errorf("connecting to chat: %w", err)
	case <-time.After(connectTimeout):
		return done, errors.New("timed out connecting to chat")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
