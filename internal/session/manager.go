// Package session manages the signed-in identity and its stored credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/models"
	"github.com/eldtechnologies/buddychat/internal/remote"
	"github.com/eldtechnologies/buddychat/internal/store"
)

var (
	// ErrValidation wraps client-side form errors. Such forms never reach the network.
	ErrValidation  = errors.New("validation failed")
	ErrNotLoggedIn = errors.New("not logged in")
)

// API is the subset of the remote API used for authentication.
type API interface {
	Login(ctx context.Context, req remote.LoginRequest) (*remote.LoginResponse, error)
	Register(ctx context.Context, req remote.RegisterRequest) (*remote.RegisterResponse, error)
	Me(ctx context.Context) (*models.User, error)
}

// State is a snapshot of the session.
type State struct {
	User     *models.User `json:"user,omitempty"`
	LoggedIn bool         `json:"loggedIn"`
	Loading  bool         `json:"loading"`
	Error    string       `json:"error,omitempty"`
	Success  bool         `json:"success"` // last signup succeeded
}

// SignupForm is the account creation form.
type SignupForm struct {
	Name      string `validate:"required"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=6"`
	Image     []byte // optional avatar
	ImageName string
	ImageType string
}

// Claims are the unverified claims of the stored bearer token.
type Claims struct {
	Subject   string    `json:"subject,omitempty"`
	IssuedAt  time.Time `json:"issuedAt,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Manager owns the session state. All methods are safe for concurrent use.
type Manager struct {
	api      API
	store    store.CredentialStore
	platform string
	validate *validator.Validate
	logger   zerolog.Logger

	mu        sync.RWMutex
	state     State
	observers []func(State)
}

// NewManager creates a session manager backed by credentials.
func NewManager(api API, credentials store.CredentialStore, platform string, logger zerolog.Logger) *Manager {
	if platform == "" {
		platform = "web"
	}
	return &Manager{
		api:      api,
		store:    credentials,
		platform: platform,
		validate: validator.New(),
		logger:   logger.With().Str("component", "session").Logger(),
	}
}

// OnChange registers fn for state changes.
func (m *Manager) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Token returns the stored credential. It satisfies remote.Client.Token.
func (m *Manager) Token(ctx context.Context) (string, error) {
	return m.store.Get(ctx)
}

// Login authenticates and stores the returned credential. On failure the
// previous session is left as it was and the error message is recorded.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return m.failValidation("Please fill in all fields")
	}

	m.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})

	resp, err := m.api.Login(ctx, remote.LoginRequest{Email: email, Password: password})
	if err == nil {
		err = m.store.Set(ctx, resp.Token)
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("email", email).Msg("login failed")
		m.update(func(s *State) {
			s.Loading = false
			s.Error = err.Error()
		})
		return err
	}

	m.logger.Info().Str("email", email).Msg("logged in")
	m.update(func(s *State) {
		s.Loading = false
		s.LoggedIn = true
	})
	return nil
}

// Signup validates form and creates an account. It does not log in.
func (m *Manager) Signup(ctx context.Context, form SignupForm) error {
	form.Name = strings.TrimSpace(form.Name)
	form.Email = normalizeEmail(form.Email)

	if err := m.validate.Struct(form); err != nil {
		return m.failValidation(validationMessage(err))
	}

	m.update(func(s *State) {
		s.Loading = true
		s.Error = ""
		s.Success = false
	})

	_, err := m.api.Register(ctx, remote.RegisterRequest{
		Name:      form.Name,
		Email:     form.Email,
		Password:  form.Password,
		Platform:  m.platform,
		Image:     form.Image,
		ImageName: form.ImageName,
		ImageType: form.ImageType,
	})
	if err != nil {
		msg := "Signup failed"
		var apiErr *remote.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		} else {
			err = fmt.Errorf("signup failed: %w", err)
		}
		m.logger.Warn().Err(err).Str("email", form.Email).Msg("signup failed")
		m.update(func(s *State) {
			s.Loading = false
			s.Error = msg
		})
		return err
	}

	m.logger.Info().Str("email", form.Email).Msg("account created")
	m.update(func(s *State) {
		s.Loading = false
		s.Success = true
	})
	return nil
}

// RefreshProfile validates the stored credential by fetching the profile.
// Any failure discards the credential and leaves the session logged out.
func (m *Manager) RefreshProfile(ctx context.Context) (*models.User, error) {
	m.update(func(s *State) { s.Loading = true })

	token, err := m.store.Get(ctx)
	if err == nil && token == "" {
		err = ErrNotLoggedIn
	}

	var user *models.User
	if err == nil {
		user, err = m.api.Me(ctx)
	}
	if err != nil {
		if !errors.Is(err, ErrNotLoggedIn) {
			m.logger.Warn().Err(err).Msg("profile refresh failed, discarding credential")
		}
		m.discard(ctx)
		return nil, err
	}

	m.update(func(s *State) {
		s.User = user
		s.LoggedIn = true
		s.Loading = false
	})
	return user, nil
}

// Logout discards the credential and resets the session. It always succeeds.
func (m *Manager) Logout() {
	m.discard(context.Background())
	m.logger.Info().Msg("logged out")
}

// HandleUnauthorized is called when the API rejects the credential.
func (m *Manager) HandleUnauthorized() {
	m.logger.Warn().Msg("credential rejected by server")
	m.discard(context.Background())
}

// Claims decodes the stored token without verifying its signature. The
// server is the only verifier; this is for display.
func (m *Manager) Claims(ctx context.Context) (*Claims, error) {
	token, err := m.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotLoggedIn
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	c := &Claims{}
	for _, key := range []string{"sub", "id", "_id", "userId"} {
		if v, ok := mc[key].(string); ok && v != "" {
			c.Subject = v
			break
		}
	}
	if v, ok := mc["iat"].(float64); ok {
		c.IssuedAt = time.Unix(int64(v), 0)
	}
	if v, ok := mc["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(v), 0)
	}
	return c, nil
}

func (m *Manager) discard(ctx context.Context) {
	if err := m.store.Delete(ctx); err != nil {
		m.logger.Error().Err(err).Msg("failed to delete stored credential")
	}
	m.update(func(s *State) { *s = State{} })
}

func (m *Manager) failValidation(msg string) error {
	m.update(func(s *State) { s.Error = msg })
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func (m *Manager) update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	state := m.state
	observers := append([]func(State){}, m.observers...)
	m.mu.Unlock()

	for _, o := range observers {
		o(state)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validationMessage turns the first failed rule into a user-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fe := verrs[0]
	switch fe.Field() + "." + fe.Tag() {
	case "Name.required":
		return "Please enter your name"
	case "Email.required":
		return "Please enter your email"
	case "Email.email":
		return "Please enter a valid email address"
	case "Password.required":
		return "Please enter a password"
	case "Password.min":
		return "Password must be at least 6 characters long"
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
