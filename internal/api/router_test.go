package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/chat"
	"github.com/eldtechnologies/buddychat/internal/handlers"
	"github.com/eldtechnologies/buddychat/internal/models"
	"github.com/eldtechnologies/buddychat/internal/session"
	"github.com/eldtechnologies/buddychat/internal/store"
)

type nopAPI struct{}

func (nopAPI) Previews(context.Context) ([]models.Preview, error) { return nil, nil }
func (nopAPI) Users(context.Context) ([]models.User, error) { return nil, nil }
func (nopAPI) PreviousMessages(context.Context, string, int, int) ([]models.Message, error) {
	return nil, nil
}

type nopTransport struct{}

func (nopTransport) SendMessage(models.Message) error { return nil }
func (nopTransport) MarkRead(string) error { return nil }

type nopSession struct{}

func (nopSession) State() session.State { return session.State{} }
func (nopSession) Claims(context.Context) (*session.Claims, error) {
	return nil, session.ErrNotLoggedIn
}

func newTestRouter(token string) http.Handler {
	engine := chat.NewEngine(nopAPI{}, nopTransport{}, "me", 10, zerolog.Nop())
	h := handlers.NewHandler(engine, nopSession{}, nil, store.NewMemoryStore())
	return NewRouter(zerolog.Nop(), h, Options{Token: token})
}

func TestRouterReadRoutes(t *testing.T) {
	r := newTestRouter("")
	for _, path := range []string{"/", "/session", "/previews", "/contacts", "/thread", "/stats", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestRouterSecurityHeaders(t *testing.T) {
	r := newTestRouter("")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/previews", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected nosniff header")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("expected no-store header")
	}
}

func TestRouterWriteRoutesRequireToken(t *testing.T) {
	r := newTestRouter("s3cret")

	send := func(auth string) int {
		req := httptest.NewRequest(http.MethodPost, "/messages/c", strings.NewReader(`{"message":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := send("Bearer wrong"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", code)
	}
	if code := send("Bearer s3cret"); code != http.StatusCreated {
		t.Fatalf("expected 201 with token, got %d", code)
	}

	// Reads stay open.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/thread", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on read route, got %d", rec.Code)
	}
}

func TestRouterRejectsNonJSONBody(t *testing.T) {
	r := newTestRouter("")
	req := httptest.NewRequest(http.MethodPost, "/messages/c", strings.NewReader("message=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}

func TestRouterRejectsLargeBody(t *testing.T) {
	r := newTestRouter("")
	body := `{"message":"` + strings.Repeat("x", 20*1024) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/messages/c", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}
