package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/remote"
	"github.com/eldtechnologies/buddychat/internal/store"
)

type backend struct {
	token     string
	logins    int
	registers int
	meStatus  int
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/login":
		b.logins++
		var req remote.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "alice@example.com" || req.Password != "secret1" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"token": b.token, "name": "Alice", "success": true})

	case "/auth/register":
		b.registers++
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("email") == "taken@example.com" {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"User already exists"}`))
			return
		}
		w.Write([]byte(`{"success":true}`))

	case "/auth/me":
		if b.meStatus != 0 {
			w.WriteHeader(b.meStatus)
			w.Write([]byte(`{"message":"Token expired"}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+b.token {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"Unauthorized"}`))
			return
		}
		w.Write([]byte(`{"_id":"u1","name":"Alice","email":"alice@example.com","imageUrl":"https://img/a.png"}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestManager(t *testing.T, b *backend) (*Manager, store.CredentialStore) {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	creds := store.NewMemoryStore()
	client := remote.NewClient(srv.URL, 0, zerolog.Nop())
	m := NewManager(client, creds, "web", zerolog.Nop())
	client.Token = m.Token
	client.OnUnauthorized = m.HandleUnauthorized
	return m, creds
}

func TestLoginThenRefreshProfile(t *testing.T) {
	m, creds := newTestManager(t, &backend{token: "tok-1"})
	ctx := context.Background()

	if err := m.Login(ctx, "  Alice@Example.COM ", "secret1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if tok, _ := creds.Get(ctx); tok != "tok-1" {
		t.Fatalf("expected token stored, got %q", tok)
	}
	if !m.State().LoggedIn {
		t.Fatal("expected logged in after login")
	}

	user, err := m.RefreshProfile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != "u1" || user.Name != "Alice" {
		t.Fatalf("unexpected user %+v", user)
	}

	state := m.State()
	if !state.LoggedIn || state.User == nil || state.User.ID != "u1" || state.Loading {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestLoginFailureKeepsPriorState(t *testing.T) {
	m, creds := newTestManager(t, &backend{token: "tok-1"})
	ctx := context.Background()
	creds.Set(ctx, "old-token")

	err := m.Login(ctx, "alice@example.com", "wrong")
	if err == nil {
		t.Fatal("expected login error")
	}
	if err.Error() != "Invalid credentials" {
		t.Fatalf("expected server message, got %q", err.Error())
	}
	if tok, _ := creds.Get(ctx); tok != "old-token" {
		t.Fatalf("expected prior credential kept, got %q", tok)
	}
	state := m.State()
	if state.Error != "Invalid credentials" || state.Loading || state.LoggedIn {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestLoginRequiresFields(t *testing.T) {
	b := &backend{token: "tok-1"}
	m, _ := newTestManager(t, b)

	err := m.Login(context.Background(), "  ", "secret1")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if b.logins != 0 {
		t.Fatal("invalid login must not reach the network")
	}
}

func TestRefreshProfileAuthFailureLogsOut(t *testing.T) {
	m, creds := newTestManager(t, &backend{token: "tok-1", meStatus: http.StatusUnauthorized})
	ctx := context.Background()
	creds.Set(ctx, "tok-1")

	if _, err := m.RefreshProfile(ctx); !remote.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if tok, _ := creds.Get(ctx); tok != "" {
		t.Fatalf("expected credential removed, got %q", tok)
	}
	state := m.State()
	if state.LoggedIn || state.User != nil || state.Loading {
		t.Fatalf("expected logged out, got %+v", state)
	}
}

func TestRefreshProfileServerErrorLogsOut(t *testing.T) {
	m, creds := newTestManager(t, &backend{token: "tok-1", meStatus: http.StatusInternalServerError})
	ctx := context.Background()
	creds.Set(ctx, "tok-1")

	if _, err := m.RefreshProfile(ctx); err == nil {
		t.Fatal("expected error")
	}
	if tok, _ := creds.Get(ctx); tok != "" {
		t.Fatal("expected any refresh failure to discard the credential")
	}
}

func TestRefreshProfileWithoutCredential(t *testing.T) {
	m, _ := newTestManager(t, &backend{token: "tok-1"})
	if _, err := m.RefreshProfile(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if m.State().LoggedIn || m.State().Loading {
		t.Fatal("expected settled logged-out state")
	}
}

func TestLogout(t *testing.T) {
	m, creds := newTestManager(t, &backend{token: "tok-1"})
	ctx := context.Background()
	m.Login(ctx, "alice@example.com", "secret1")
	m.RefreshProfile(ctx)

	var last State
	m.OnChange(func(s State) { last = s })
	m.Logout()

	if tok, _ := creds.Get(ctx); tok != "" {
		t.Fatal("expected credential removed")
	}
	if last.LoggedIn || last.User != nil {
		t.Fatalf("expected reset state, got %+v", last)
	}
}

func TestSignupValidation(t *testing.T) {
	tests := []struct {
		name string
		form SignupForm
		want string
	}{
		{"missing name", SignupForm{Name: " ", Email: "a@b.co", Password: "secret1"}, "Please enter your name"},
		{"missing email", SignupForm{Name: "A", Password: "secret1"}, "Please enter your email"},
		{"bad email", SignupForm{Name: "A", Email: "not-an-email", Password: "secret1"}, "Please enter a valid email address"},
		{"missing password", SignupForm{Name: "A", Email: "a@b.co"}, "Please enter a password"},
		{"short password", SignupForm{Name: "A", Email: "a@b.co", Password: "12345"}, "Password must be at least 6 characters long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &backend{}
			m, _ := newTestManager(t, b)

			err := m.Signup(context.Background(), tt.form)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) || m.State().Error != tt.want {
				t.Errorf("expected %q, got %q (state %q)", tt.want, err.Error(), m.State().Error)
			}
			if b.registers != 0 {
				t.Error("invalid form must not reach the network")
			}
		})
	}
}

func TestSignupSuccessDoesNotLogIn(t *testing.T) {
	m, creds := newTestManager(t, &backend{})
	ctx := context.Background()

	err := m.Signup(ctx, SignupForm{Name: "Bob", Email: "Bob@Example.com", Password: "secret1", Image: []byte("png")})
	if err != nil {
		t.Fatal(err)
	}
	state := m.State()
	if !state.Success || state.LoggedIn {
		t.Fatalf("unexpected state %+v", state)
	}
	if tok, _ := creds.Get(ctx); tok != "" {
		t.Fatal("signup must not store a credential")
	}
}

func TestSignupServerError(t *testing.T) {
	m, _ := newTestManager(t, &backend{})

	err := m.Signup(context.Background(), SignupForm{Name: "T", Email: "taken@example.com", Password: "secret1"})
	if err == nil || err.Error() != "User already exists" {
		t.Fatalf("expected server message, got %v", err)
	}
	if m.State().Success || m.State().Error != "User already exists" {
		t.Fatalf("unexpected state %+v", m.State())
	}
}

func TestClaims(t *testing.T) {
	m, creds := newTestManager(t, &backend{})
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "u1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatal(err)
	}
	creds.Set(ctx, signed)

	claims, err := m.Claims(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "u1" || !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected claims %+v", claims)
	}

	creds.Set(ctx, "opaque")
	if _, err := m.Claims(ctx); err == nil {
		t.Fatal("expected error for a non-JWT credential")
	}
}
