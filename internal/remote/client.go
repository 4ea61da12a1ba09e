// Package remote talks to the agenda backend: login, registration, the
// current user and the event CRUD endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Makepad-fr/agenda/internal/auth"
)

const maxErrorBody = 512

// Options configure a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Tokens supplies the bearer token for authenticated endpoints.
	Tokens oauth2.TokenSource
	// Transport is the underlying round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	tokens  oauth2.TokenSource
	plain   *http.Client
	authed  *http.Client
	log     *zap.Logger
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("api base url is empty")
	}
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", opts.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", opts.BaseURL)
	}
	if opts.Tokens == nil {
		return nil, errors.New("token source is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	base := newTracingTransport(opts.Transport, log)
	return &Client{
		baseURL: u,
		tokens:  opts.Tokens,
		plain:   &http.Client{Transport: base, Timeout: opts.Timeout},
		authed: &http.Client{
			Transport: &oauth2.Transport{Source: opts.Tokens, Base: base},
			Timeout:   opts.Timeout,
		},
		log: log,
	}, nil
}

// Login exchanges credentials for a token and the user record.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	const op = "login"
	body := map[string]string{"username": username, "password": password}
	var w wireLogin
	if err := c.do(ctx, c.plain, op, http.MethodPost, "/auth/login", body, &w); err != nil {
		return LoginResponse{}, err
	}
	if w.Token == nil || strings.TrimSpace(*w.Token) == "" {
		return LoginResponse{}, &MalformedResponseError{Op: op, Reason: "missing token"}
	}
	u, err := w.User.validate()
	if err != nil {
		// Some backends only return the token; keep the name we logged in with.
		u.Username = username
	}
	return LoginResponse{Token: *w.Token, User: u}, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, username, password, role string) (auth.User, error) {
	const op = "register"
	body := map[string]string{"username": username, "password": password, "role": role}
	var w wireUser
	if err := c.do(ctx, c.plain, op, http.MethodPost, "/register", body, &w); err != nil {
		return auth.User{}, err
	}
	u, err := w.validate()
	if err != nil {
		return auth.User{}, &MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return u, nil
}

// CurrentUser returns the account behind the bearer token.
func (c *Client) CurrentUser(ctx context.Context) (auth.User, error) {
	const op = "get user"
	if err := c.requireToken(); err != nil {
		return auth.User{}, err
	}
	var w wireUser
	if err := c.do(ctx, c.authed, op, http.MethodGet, "/user", nil, &w); err != nil {
		return auth.User{}, err
	}
	u, err := w.validate()
	if err != nil {
		return auth.User{}, &MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return u, nil
}

// Events lists the caller's events.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	const op = "list events"
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := c.do(ctx, c.authed, op, http.MethodGet, "/events", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raw))
	for i, r := range raw {
		ev, err := decodeEvent(r)
		if err != nil {
			return nil, &MalformedResponseError{Op: op, Reason: fmt.Sprintf("item %d: %v", i, err)}
		}
		out = append(out, ev)
	}
	return out, nil
}

// CreateEvent posts a new event and returns the server's copy.
func (c *Client) CreateEvent(ctx context.Context, ev NewEvent) (Event, error) {
	const op = "create event"
	if err := c.requireToken(); err != nil {
		return Event{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, c.authed, op, http.MethodPost, "/events", ev, &raw); err != nil {
		return Event{}, err
	}
	created, err := decodeEvent(raw)
	if err != nil {
		return Event{}, &MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return created, nil
}

// DeleteEvent removes an event. Any 2xx counts as success.
func (c *Client) DeleteEvent(ctx context.Context, id int) error {
	if err := c.requireToken(); err != nil {
		return err
	}
	return c.do(ctx, c.authed, "delete event", http.MethodDelete, "/events/"+strconv.Itoa(id), nil, nil)
}

func (c *Client) requireToken() error {
	_, err := c.tokens.Token()
	return err
}

func decodeEvent(b []byte) (Event, error) {
	if len(bytes.TrimSpace(b)) == 0 || bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return Event{}, errors.New("empty event")
	}
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return Event{}, err
	}
	return w.validate()
}

// do sends a JSON request and decodes a JSON response into out (skipped
// when out is nil).
func (c *Client) do(ctx context.Context, hc *http.Client, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	u := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Info("request rejected", zap.String("op", op), zap.Int("status", resp.StatusCode))
		return &RequestError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return nil
}
