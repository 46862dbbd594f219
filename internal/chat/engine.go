package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/crypto"
	"github.com/eldtechnologies/buddychat/internal/metrics"
	"github.com/eldtechnologies/buddychat/internal/models"
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNoLocalUser   = errors.New("no signed-in user")
	ErrNoCounterpart = errors.New("counterpart id is required")
	ErrSelfMessage   = errors.New("cannot message yourself")
)

// API is the subset of the remote API the engine reads from.
type API interface {
	Previews(ctx context.Context) ([]models.Preview, error)
	Users(ctx context.Context) ([]models.User, error)
	PreviousMessages(ctx context.Context, counterpartID string, skip, limit int) ([]models.Message, error)
}

// Transport emits outbound channel events.
type Transport interface {
	SendMessage(msg models.Message) error
	MarkRead(counterpartID string) error
}

// Subscriber delivers inbound chat messages.
type Subscriber interface {
	OnChatMessage(fn func(models.Message))
}

// ThreadSnapshot is a read-only view of the open thread.
type ThreadSnapshot struct {
	CounterpartID string           `json:"counterpartId,omitempty"`
	Status        ThreadStatus     `json:"status"`
	Cursor        models.Cursor    `json:"cursor"`
	Messages      []models.Message `json:"messages"`
}

// Snapshot is a read-only view of all chat state.
type Snapshot struct {
	LocalUserID string           `json:"localUserId"`
	Previews    []models.Preview `json:"previews"`
	Active      string           `json:"active,omitempty"`
	Thread      ThreadSnapshot   `json:"thread"`
	TotalUnread int              `json:"totalUnread"`
	Error       string           `json:"error,omitempty"`
}

// Engine owns the preview registry and the open thread. It is the only
// subscriber to inbound channel events; presentation code reads snapshots.
//
// State changes are serialized by one mutex. Network calls run outside it.
type Engine struct {
	api       API
	transport Transport
	logger    zerolog.Logger
	pageSize  int
	now       func() time.Time

	mu          sync.Mutex
	localUserID string
	registry    Registry
	thread      *Thread
	active      string
	users       []models.User
	sent        map[string]bool // clientIds of locally sent messages
	lastError   string
	observers   []func()
}

// NewEngine creates an engine for localUserID.
func NewEngine(api API, transport Transport, localUserID string, pageSize int, logger zerolog.Logger) *Engine {
	return &Engine{
		api:         api,
		transport:   transport,
		logger:      logger.With().Str("component", "chat").Logger(),
		pageSize:    pageSize,
		now:         time.Now,
		localUserID: localUserID,
		thread:      NewThread(pageSize),
		sent:        make(map[string]bool),
	}
}

// OnChange registers fn to run after every state change. fn runs outside the
// engine lock and may call Snapshot.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Attach subscribes the engine to inbound chat messages from sub.
func (e *Engine) Attach(sub Subscriber) {
	sub.OnChatMessage(e.HandleInbound)
}

// Reset tears down all chat state and rebinds the engine to localUserID.
// Called on logout with an empty id.
func (e *Engine) Reset(localUserID string) {
	e.mu.Lock()
	e.localUserID = localUserID
	e.registry = Registry{}
	e.thread.Close()
	e.active = ""
	e.users = nil
	e.sent = make(map[string]bool)
	e.lastError = ""
	e.mu.Unlock()

	e.changed()
}

// LoadPreviews replaces the preview list with the server snapshot.
func (e *Engine) LoadPreviews(ctx context.Context) error {
	previews, err := e.api.Previews(ctx)
	if err != nil {
		e.fail(err, "failed to load previews")
		return err
	}

	e.mu.Lock()
	e.registry.Load(previews)
	if e.active != "" {
		e.registry.ClearUnread(e.active)
	}
	e.lastError = ""
	e.mu.Unlock()

	e.changed()
	return nil
}

// LoadUsers fetches the user directory.
func (e *Engine) LoadUsers(ctx context.Context) error {
	users, err := e.api.Users(ctx)
	if err != nil {
		e.fail(err, "failed to load users")
		return err
	}

	e.mu.Lock()
	e.users = users
	e.mu.Unlock()

	e.changed()
	return nil
}

// NewContacts returns users that have no conversation yet, excluding the
// local user, in directory order.
func (e *Engine) NewContacts() []models.User {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.User
	for _, u := range e.users {
		if u.ID == e.localUserID {
			continue
		}
		if _, ok := e.registry.Get(u.ID); ok {
			continue
		}
		out = append(out, u)
	}
	return out
}

// OpenThread makes counterpartID the active thread, clears its unread
// counter, tells the server it was read and loads the newest page.
func (e *Engine) OpenThread(ctx context.Context, counterpartID string) error {
	if counterpartID == "" {
		return ErrNoCounterpart
	}

	e.mu.Lock()
	e.active = counterpartID
	e.registry.ClearUnread(counterpartID)
	req := e.thread.Open(counterpartID)
	e.mu.Unlock()

	e.changed()
	e.markRead(counterpartID)
	return e.fetchPage(ctx, req)
}

// CloseThread clears the active thread marker.
func (e *Engine) CloseThread() {
	e.mu.Lock()
	e.active = ""
	e.thread.Close()
	e.mu.Unlock()

	e.changed()
}

// LoadNextPage fetches the next older page of the active thread. It returns
// ErrExhausted or ErrPageInFlight without fetching when no page should be requested.
func (e *Engine) LoadNextPage(ctx context.Context) error {
	e.mu.Lock()
	req, err := e.thread.BeginPage()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.changed()
	return e.fetchPage(ctx, req)
}

func (e *Engine) fetchPage(ctx context.Context, req PageRequest) error {
	page, err := e.api.PreviousMessages(ctx, req.CounterpartID, req.Offset, req.Limit)

	e.mu.Lock()
	var applied bool
	if err != nil {
		applied = e.thread.FailPage(req)
		if applied {
			e.lastError = err.Error()
		}
	} else {
		applied = e.thread.CompletePage(req, page)
	}
	e.mu.Unlock()

	if !applied {
		e.logger.Debug().Str("counterpart", req.CounterpartID).Int("offset", req.Offset).Msg("discarding stale page")
		return nil
	}
	if err != nil {
		e.logger.Error().Err(err).Str("counterpart", req.CounterpartID).Msg("failed to load messages")
	}
	e.changed()
	return err
}

// Send applies a message to local state and emits it. When the emit fails
// the message stays in the thread flagged Failed and the error is returned.
func (e *Engine) Send(counterpartID, body string) (models.Message, error) {
	if counterpartID == "" {
		return models.Message{}, ErrNoCounterpart
	}
	if strings.TrimSpace(body) == "" {
		return models.Message{}, ErrEmptyMessage
	}

	e.mu.Lock()
	if e.localUserID == "" {
		e.mu.Unlock()
		return models.Message{}, ErrNoLocalUser
	}
	if counterpartID == e.localUserID {
		e.mu.Unlock()
		return models.Message{}, ErrSelfMessage
	}

	msg := models.Message{
		ClientID:   crypto.NewClientMessageID(),
		SenderID:   e.localUserID,
		ReceiverID: counterpartID,
		Body:       body,
		CreatedAt:  e.now(),
	}
	msg.CounterpartName, msg.CounterpartAvatarURL = e.displayOf(counterpartID)

	e.sent[msg.ClientID] = true
	e.registry.Apply(msg, e.localUserID)
	if e.active == counterpartID {
		e.thread.AppendLive(msg)
	}
	e.mu.Unlock()
	e.changed()

	if err := e.transport.SendMessage(msg); err != nil {
		e.mu.Lock()
		e.thread.MarkFailed(msg.ClientID)
		e.lastError = err.Error()
		e.mu.Unlock()
		e.changed()

		msg.Failed = true
		return msg, err
	}
	return msg, nil
}

// HandleInbound reconciles a message delivered by the channel. Echoes of
// messages this engine sent are ignored, as are messages that do not have
// the local user as exactly one endpoint.
func (e *Engine) HandleInbound(msg models.Message) {
	e.mu.Lock()
	if e.localUserID == "" {
		e.mu.Unlock()
		return
	}
	if msg.ClientID != "" && e.sent[msg.ClientID] {
		delete(e.sent, msg.ClientID)
		e.mu.Unlock()
		e.logger.Debug().Str("client_id", msg.ClientID).Msg("ignoring echo of sent message")
		return
	}
	if !involves(msg, e.localUserID) {
		e.mu.Unlock()
		e.logger.Warn().
			Str("sender", msg.SenderID).
			Str("receiver", msg.ReceiverID).
			Msg("dropping message not addressed to or from the local user")
		return
	}

	counterpart := e.registry.Apply(msg, e.localUserID)
	outbound := msg.IsOutbound(e.localUserID)
	viewing := e.active != "" && counterpart == e.active
	if viewing {
		e.thread.AppendLive(msg)
		e.registry.ClearUnread(counterpart)
	}
	e.mu.Unlock()

	e.changed()
	if viewing && !outbound {
		e.markRead(counterpart)
	}
}

// involves reports whether exactly one endpoint of msg is localUserID and
// the other one is set.
func involves(msg models.Message, localUserID string) bool {
	fromMe := msg.SenderID == localUserID
	toMe := msg.ReceiverID == localUserID
	if fromMe == toMe {
		return false
	}
	return msg.CounterpartOf(localUserID) != ""
}

// LocalUserID returns the id of the signed-in user, or empty.
func (e *Engine) LocalUserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localUserID
}

// Previews returns the conversation list in display order.
func (e *Engine) Previews() []models.Preview {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Snapshot()
}

// Snapshot returns a consistent copy of all chat state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		LocalUserID: e.localUserID,
		Previews:    e.registry.Snapshot(),
		Active:      e.active,
		Thread: ThreadSnapshot{
			CounterpartID: e.thread.CounterpartID(),
			Status:        e.thread.Status(),
			Cursor:        e.thread.Cursor(),
			Messages:      e.thread.Messages(),
		},
		TotalUnread: e.registry.TotalUnread(),
		Error:       e.lastError,
	}
}

// displayOf looks up counterpart display fields from the preview list or
// the user directory. Caller holds e.mu.
func (e *Engine) displayOf(counterpartID string) (string, string) {
	if p, ok := e.registry.Get(counterpartID); ok {
		return p.CounterpartName, p.CounterpartAvatarURL
	}
	for _, u := range e.users {
		if u.ID == counterpartID {
			return u.Name, u.AvatarURL
		}
	}
	return "", ""
}

func (e *Engine) markRead(counterpartID string) {
	if err := e.transport.MarkRead(counterpartID); err != nil {
		e.logger.Warn().Err(err).Str("counterpart", counterpartID).Msg("mark-read not delivered")
	}
}

func (e *Engine) fail(err error, msg string) {
	e.logger.Error().Err(err).Msg(msg)
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()
	e.changed()
}

func (e *Engine) changed() {
	e.mu.Lock()
	observers := append([]func(){}, e.observers...)
	unread := e.registry.TotalUnread()
	e.mu.Unlock()

	metrics.UnreadMessages.Set(float64(unread))
	for _, fn := range observers {
		fn()
	}
}
