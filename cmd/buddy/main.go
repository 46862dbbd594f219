// Buddy CLI - command line client for Buddy Chat
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/api"
	"github.com/eldtechnologies/buddychat/internal/chat"
	"github.com/eldtechnologies/buddychat/internal/config"
	"github.com/eldtechnologies/buddychat/internal/handlers"
	"github.com/eldtechnologies/buddychat/internal/models"
	"github.com/eldtechnologies/buddychat/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		usage()
		return
	}

	a, err := newApp(ctx, cfg, logger)
	exitOnError(err)
	defer a.Close()

	switch cmd {
	case "login":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: buddy login <email> <password>")
			os.Exit(1)
		}
		exitOnError(a.session.Login(ctx, args[0], args[1]))
		user, err := a.session.RefreshProfile(ctx)
		exitOnError(err)
		fmt.Printf("Logged in as %s <%s>\n", user.Name, user.Email)

	case "signup":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: buddy signup <name> <email> <password> [avatar.png]")
			os.Exit(1)
		}
		form := session.SignupForm{Name: args[0], Email: args[1], Password: args[2]}
		if len(args) > 3 {
			img, err := os.ReadFile(args[3])
			exitOnError(err)
			form.Image = img
			form.ImageName = filepath.Base(args[3])
			form.ImageType = http.DetectContentType(img)
		}
		exitOnError(a.session.Signup(ctx, form))
		fmt.Println("Account created. Run `buddy login` to sign in.")

	case "logout":
		a.session.Logout()
		fmt.Println("Logged out")

	case "whoami":
		exitOnError(a.requireLogin(ctx))
		claims, _ := a.session.Claims(ctx) // opaque tokens have none
		if cfg.JSONOutput() {
			printJSON(map[string]interface{}{"user": a.user, "claims": claims})
			return
		}
		fmt.Printf("%s <%s>\n  id: %s\n", a.user.Name, a.user.Email, a.user.ID)
		if claims != nil && !claims.ExpiresAt.IsZero() {
			fmt.Printf("  token expires: %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
		}

	case "users":
		exitOnError(a.requireLogin(ctx))
		exitOnError(a.engine.LoadPreviews(ctx))
		exitOnError(a.engine.LoadUsers(ctx))
		contacts := a.engine.NewContacts()
		if cfg.JSONOutput() {
			printJSON(contacts)
			return
		}
		if len(contacts) == 0 {
			fmt.Println("No new people to chat with")
		}
		for _, u := range contacts {
			fmt.Printf("  %s  %s\n", u.ID, u.Name)
		}

	case "previews":
		exitOnError(a.requireLogin(ctx))
		exitOnError(a.engine.LoadPreviews(ctx))
		if cfg.JSONOutput() {
			printJSON(a.engine.Previews())
			return
		}
		printPreviews(a.engine.Previews())

	case "thread":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: buddy thread <user_id> [pages]")
			os.Exit(1)
		}
		pages := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				exitOnError(fmt.Errorf("invalid page count %q", args[1]))
			}
			pages = n
		}
		exitOnError(a.requireLogin(ctx))

		// Connect so opening the thread marks it read; history works offline too.
		runCtx, cancel := context.WithCancel(ctx)
		if _, err := a.connect(runCtx); err != nil {
			logger.Warn().Err(err).Msg("continuing offline")
		}
		exitOnError(a.engine.OpenThread(ctx, args[0]))
		for i := 1; i < pages; i++ {
			err := a.engine.LoadNextPage(ctx)
			if errors.Is(err, chat.ErrExhausted) {
				break
			}
			exitOnError(err)
		}
		cancel()
		if cfg.JSONOutput() {
			printJSON(a.engine.Snapshot().Thread)
			return
		}
		printThread(a.engine.Snapshot().Thread, a.user.ID)

	case "send":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: buddy send <user_id> <message>")
			os.Exit(1)
		}
		exitOnError(a.requireLogin(ctx))
		exitOnError(a.engine.LoadUsers(ctx))

		runCtx, cancel := context.WithCancel(ctx)
		_, err := a.connect(runCtx)
		if err != nil {
			cancel()
			exitOnError(err)
		}
		msg, err := a.engine.Send(args[0], strings.Join(args[1:], " "))
		cancel()
		exitOnError(err)
		fmt.Printf("Sent to %s at %s\n", msg.ReceiverID, msg.CreatedAt.Format("15:04"))

	case "listen":
		exitOnError(a.requireLogin(ctx))
		exitOnError(a.engine.LoadPreviews(ctx))
		a.channel.OnChatMessage(func(m models.Message) {
			if m.IsOutbound(a.user.ID) {
				return
			}
			name, _ := m.CounterpartDisplay(a.user.ID)
			if name == "" {
				name = m.SenderID
			}
			fmt.Printf("[%s] %s: %s\n", chat.FormatChatTime(m.CreatedAt, time.Now()), name, m.Body)
		})

		done, err := a.connect(ctx)
		exitOnError(err)
		fmt.Println("Listening for messages, Ctrl-C to stop")
		exitOnError(<-done)

	case "serve":
		exitOnError(a.requireLogin(ctx))
		exitOnError(serve(ctx, a))

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// serve runs the channel and the local state API until ctx is done.
func serve(ctx context.Context, a *app) error {
	if err := a.engine.LoadPreviews(ctx); err != nil {
		return err
	}
	if err := a.engine.LoadUsers(ctx); err != nil {
		return err
	}

	h := handlers.NewHandler(a.engine, a.session, a.channel, a.credentials)
	srv := &http.Server{
		Addr:         a.cfg.StateAddr,
		Handler:      api.NewRouter(a.logger, h, api.Options{Token: a.cfg.StateToken}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // thread fetches may wait on the remote API
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		a.logger.Info().
			Str("addr", a.cfg.StateAddr).
			Str("env", a.cfg.Env).
			Msg("starting state API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	go func() {
		errc <- a.channel.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}

	a.logger.Info().Msg("shutting down state API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info().Msg("state API stopped")
	return runErr
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Logger()
	}
	return logger.Level(level)
}

func printPreviews(previews []models.Preview) {
	if len(previews) == 0 {
		fmt.Println("No conversations yet")
		return
	}
	now := time.Now()
	for _, p := range previews {
		badge := ""
		if p.UnreadCount > 0 {
			badge = fmt.Sprintf(" (%d)", p.UnreadCount)
		}
		fmt.Printf("  %-20s %-10s %s%s\n    %s\n",
			p.CounterpartName, chat.FormatChatTime(p.LatestMessageAt, now), p.CounterpartID, badge, p.LatestMessageText)
	}
}

func printThread(t chat.ThreadSnapshot, localUserID string) {
	if len(t.Messages) == 0 {
		fmt.Println("No messages yet")
		return
	}
	for _, m := range t.Messages {
		who := "them"
		if m.IsOutbound(localUserID) {
			who = "me"
		}
		fmt.Printf("[%s] %-4s %s\n", m.CreatedAt.Local().Format("03:04 PM"), who, m.Body)
	}
	if !t.Cursor.Exhausted {
		fmt.Println("  ... older messages available")
	}
}

func usage() {
	fmt.Println(`Buddy CLI - Buddy Chat direct messages

Usage: buddy <command> [options]

Commands:
  login <email> <password>              Sign in and store the credential
  signup <name> <email> <password> [img] Create an account
  logout                                Discard the stored credential
  whoami                                Show the signed-in user
  users                                 List people without a conversation yet
  previews                              List conversations
  thread <user_id> [pages]              Show a conversation
  send <user_id> <message>              Send a message
  listen                                Print incoming messages
  serve                                 Run the local state API
  help                                  Show this help

Environment:
  BUDDY_API_URL         API root (default: production backend)
  BUDDY_SOCKET_URL      Socket service origin
  BUDDY_CONFIG          Config directory (default: ~/.buddy)
  CREDENTIAL_STORE_URL  file://, sqlite://, redis://, postgres:// (default: file in BUDDY_CONFIG)
  CREDENTIAL_KEY        Seals the stored token
  STATE_ADDR            Local state API address (default: 127.0.0.1:8088)
  STATE_TOKEN           Bearer token required on state API writes
  BUDDY_OUTPUT          "json" for machine-readable output`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
