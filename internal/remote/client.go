// Package remote is the HTTP client for the Buddy Chat backend API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/crypto"
	"github.com/eldtechnologies/buddychat/internal/metrics"
	"github.com/eldtechnologies/buddychat/internal/models"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://buddy-chat-backend-ii8g.onrender.com/api/v1"

// ErrMissingToken is returned by authenticated calls when no credential is stored.
var ErrMissingToken = errors.New("not logged in")

// Error is a non-2xx response from the API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is a 401 from the API or a missing credential.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrMissingToken) {
		return true
	}
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client is a Buddy Chat API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Token supplies the bearer credential for authenticated calls.
	Token func(ctx context.Context) (string, error)

	// OnUnauthorized runs after any authenticated call is rejected with 401.
	OnUnauthorized func()

	logger zerolog.Logger
}

// NewClient creates a new API client. A zero timeout leaves requests unbounded.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "remote").Logger(),
	}
}

// request describes one API call.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	authed      bool
}

// doRequest performs an HTTP request and returns the response body of a 2xx reply.
func (c *Client) doRequest(ctx context.Context, r request) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.BaseURL+r.path, bytes.NewReader(r.body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", crypto.NewUUIDv7().String())
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	if r.authed {
		token := ""
		if c.Token != nil {
			token, err = c.Token(ctx)
			if err != nil {
				return nil, fmt.Errorf("reading credential: %w", err)
			}
		}
		if token == "" {
			return nil, ErrMissingToken
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	path := normalizePath(r.path)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(r.method, path, "error").Inc()
		c.logger.Warn().Err(err).Str("method", r.method).Str("path", path).Msg("request failed")
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(r.method, path, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.APIRequestDuration.WithLabelValues(r.method, path).Observe(time.Since(start).Seconds())

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)

		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}

		c.logger.Debug().
			Str("method", r.method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("request rejected")

		if r.authed && resp.StatusCode == http.StatusUnauthorized && c.OnUnauthorized != nil {
			c.OnUnauthorized()
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}

	return respBody, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.doRequest(ctx, request{method: http.MethodGet, path: path, authed: true})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", normalizePath(path), err)
	}
	return nil
}

// normalizePath normalizes paths to avoid high cardinality in metrics.
func normalizePath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if strings.HasPrefix(path, "/chat/get-previous/") {
		return "/chat/get-previous/:id"
	}
	return path
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the response from login.
type LoginResponse struct {
	Token   string `json:"token"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	body, _ := json.Marshal(req)
	respBody, err := c.doRequest(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return nil, err
	}

	var resp LoginResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("login response did not include a token")
	}
	return &resp, nil
}

// RegisterRequest is the multipart payload for account creation.
type RegisterRequest struct {
	Name      string
	Email     string
	Password  string
	Platform  string
	Image     []byte // optional avatar
	ImageName string
	ImageType string
}

// RegisterResponse is the response from account creation.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Register creates a new account. It does not log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"name", req.Name},
		{"email", req.Email},
		{"password", req.Password},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, err
		}
	}

	if len(req.Image) > 0 {
		name := req.ImageName
		if name == "" {
			name = "profile.png"
		}
		ctype := req.ImageType
		if ctype == "" {
			ctype = "image/png"
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
		h.Set("Content-Type", ctype)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(req.Image); err != nil {
			return nil, err
		}
	}

	if err := mw.WriteField("platform", req.Platform); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	respBody, err := c.doRequest(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}

	var resp RegisterResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, err
		}
	}
	return &resp, nil
}

// Me fetches the profile of the credential's owner.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.getJSON(ctx, "/auth/me", &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, errors.New("profile response did not include a user id")
	}
	return &user, nil
}

// UsersResponse is the response from listing users.
type UsersResponse struct {
	Users []models.User `json:"users"`
}

// Users lists every registered user.
func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var resp UsersResponse
	if err := c.getJSON(ctx, "/auth/profile", &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// MessagesResponse is the response from the history endpoint.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// PreviousMessages fetches one history page with a counterpart, newest first.
func (c *Client) PreviousMessages(ctx context.Context, counterpartID string, skip, limit int) ([]models.Message, error) {
	path := fmt.Sprintf("/chat/get-previous/%s?skip=%d&limit=%d", url.PathEscape(counterpartID), skip, limit)

	var resp MessagesResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Previews fetches the current conversation preview snapshot.
func (c *Client) Previews(ctx context.Context) ([]models.Preview, error) {
	var previews []models.Preview
	if err := c.getJSON(ctx, "/chat/preview", &previews); err != nil {
		return nil, err
	}
	return previews, nil
}
