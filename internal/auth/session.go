package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Makepad-fr/agenda/internal/store"
)

const (
	TokenKey = "token"
	UserKey  = "user"

	// TokenEnv overrides whatever token the store holds.
	TokenEnv = "AGENDA_TOKEN"
)

// ErrMissingToken is returned for authenticated calls made without a
// usable token. It is never retried.
var ErrMissingToken = errors.New("no token found")

// User is the account record returned by the server at login.
type User struct {
	ID       int    `json:"id,omitempty"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// TokenInfo describes the current token for status output.
type TokenInfo struct {
	Token     string
	Source    string         // "env" | "store"
	ExpiresAt *time.Time     // from the JWT exp claim, if any
	Claims    map[string]any // nil for opaque tokens
}

// Session keeps the bearer token and the user record in the local store.
// It is the oauth2.TokenSource behind every authenticated request.
type Session struct {
	store  store.Store
	getenv func(string) string
	now    func() time.Time
}

func NewSession(s store.Store) *Session {
	return &Session{store: s, getenv: os.Getenv, now: time.Now}
}

// Save persists the token and the user returned by login.
func (s *Session) Save(token string, user User) error {
	token = strings.TrimSpace(stripBearer(token))
	if token == "" {
		return fmt.Errorf("empty token")
	}
	tb, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	ub, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.store.Set(TokenKey, tb); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := s.store.Set(UserKey, ub); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// Logout removes both keys.
func (s *Session) Logout() error {
	if err := s.store.Delete(TokenKey); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	if err := s.store.Delete(UserKey); err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	return nil
}

// Info returns the current token, or nil when not logged in.
func (s *Session) Info() (*TokenInfo, error) {
	if env := strings.TrimSpace(s.getenv(TokenEnv)); env != "" {
		return describe(stripBearer(env), "env"), nil
	}
	b, ok, err := s.store.Get(TokenKey)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var token string
	if err := json.Unmarshal(b, &token); err != nil {
		// Older files may hold the raw token rather than a JSON string.
		token = strings.TrimSpace(string(b))
	}
	token = stripBearer(token)
	if token == "" {
		return nil, nil
	}
	return describe(token, "store"), nil
}

// Authenticated mirrors the route guard: a usable token must be present.
func (s *Session) Authenticated() bool {
	_, err := s.Token()
	return err == nil
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	ti, err := s.Info()
	if err != nil {
		return nil, err
	}
	if ti == nil {
		return nil, ErrMissingToken
	}
	tok := &oauth2.Token{AccessToken: ti.Token, TokenType: "Bearer"}
	if ti.ExpiresAt != nil {
		if !ti.ExpiresAt.After(s.now()) {
			return nil, fmt.Errorf("%w: token expired at %s", ErrMissingToken, ti.ExpiresAt.UTC().Format(time.RFC3339))
		}
		tok.Expiry = *ti.ExpiresAt
	}
	return tok, nil
}

// User returns the stored user record, or nil.
func (s *Session) User() (*User, error) {
	b, ok, err := s.store.Get(UserKey)
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("parse user: %w", err)
	}
	return &u, nil
}

func describe(token, source string) *TokenInfo {
	ti := &TokenInfo{Token: token, Source: source}
	claims, err := DecodeClaims(token)
	if err != nil {
		return ti
	}
	ti.Claims = claims
	if exp, ok := claims["exp"].(float64); ok && exp > 0 {
		t := time.Unix(int64(exp), 0)
		ti.ExpiresAt = &t
	}
	return ti
}

// DecodeClaims reads a JWT payload without verifying it.
func DecodeClaims(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("not a JWT")
	}
	payload, err := decodeB64URL(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return claims, nil
}

func decodeB64URL(s string) ([]byte, error) {
	dec, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, err
	}
	return dec, nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
