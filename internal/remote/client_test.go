package remote

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/Makepad-fr/agenda/internal/auth"
)

type tokenFunc func() (*oauth2.Token, error)

func (f tokenFunc) Token() (*oauth2.Token, error) { return f() }

func newTestClient(t *testing.T, h http.Handler, tokens oauth2.TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	if tokens == nil {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"})
	}
	c, err := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, Tokens: tokens, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return c
}

func TestEventsSendsBearerAndDecodes(t *testing.T) {
	var authz, reqID string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/events", r.URL.Path)
		authz = r.Header.Get("Authorization")
		reqID = r.Header.Get(RequestIDHeader)
		_, _ = w.Write([]byte(`[{"id":5,"title":"Exam","date":"2025-01-01","description":"Midterm"},{"id":"6","title":"Lab"}]`))
	}), nil)

	evs, err := c.Events(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", authz)
	assert.NotEmpty(t, reqID)
	assert.Equal(t, []Event{
		{ID: 5, Title: "Exam", Date: "2025-01-01", Description: "Midterm"},
		{ID: 6, Title: "Lab"},
	}, evs)
}

func TestMissingTokenSendsNothing(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}), tokenFunc(func() (*oauth2.Token, error) { return nil, auth.ErrMissingToken }))

	_, err := c.Events(t.Context())
	assert.ErrorIs(t, err, auth.ErrMissingToken)
	err = c.DeleteEvent(t.Context(), 5)
	assert.ErrorIs(t, err, auth.ErrMissingToken)
	_, err = c.CreateEvent(t.Context(), NewEvent{Title: "x"})
	assert.ErrorIs(t, err, auth.ErrMissingToken)
	assert.Zero(t, hits.Load())
}

func TestMalformedEvents(t *testing.T) {
	tests := map[string]string{
		"not an array":  `{"id":1}`,
		"missing id":    `[{"title":"Exam"}]`,
		"missing title": `[{"id":1}]`,
		"bad id":        `[{"id":"five","title":"Exam"}]`,
		"not json":      `<html>`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}), nil)
			_, err := c.Events(t.Context())
			var me *MalformedResponseError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, "list events", me.Op)
		})
	}
}

func TestDeleteEventStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		switch r.URL.Path {
		case "/events/5":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "event not found", http.StatusNotFound)
		}
	}), nil)

	require.NoError(t, c.DeleteEvent(t.Context(), 5))

	err := c.DeleteEvent(t.Context(), 9)
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.Contains(t, re.Error(), "event not found")
	assert.False(t, re.Unauthorized())
}

func TestCreateEventPostsBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in NewEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, NewEvent{Title: "Exam", Date: "2025-01-01 09:00", Description: "Midterm"}, in)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 12, "title": in.Title, "date": in.Date, "description": in.Description})
	}), nil)

	ev, err := c.CreateEvent(t.Context(), NewEvent{Title: "Exam", Date: "2025-01-01 09:00", Description: "Midterm"})
	require.NoError(t, err)
	assert.Equal(t, 12, ev.ID)
}

func TestLoginAndRegister(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "login is not authenticated")
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["password"] != "secret1" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"token":"jwt-abc","user":{"id":3,"username":"ana","role":"student"}}`))
	})
	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "teacher", in["role"])
		_, _ = w.Write([]byte(`{"id":4,"username":"` + in["username"] + `","role":"teacher"}`))
	})
	c := newTestClient(t, mux, tokenFunc(func() (*oauth2.Token, error) { return nil, auth.ErrMissingToken }))

	res, err := c.Login(t.Context(), "ana", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", res.Token)
	assert.Equal(t, auth.User{ID: 3, Username: "ana", Role: "student"}, res.User)

	_, err = c.Login(t.Context(), "ana", "nope")
	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.True(t, re.Unauthorized())

	u, err := c.Register(t.Context(), "bob", "secret2", "teacher")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)
}

func TestNewValidatesOptions(t *testing.T) {
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"})
	_, err := New(Options{BaseURL: "", Tokens: tokens})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "ftp://example.com", Tokens: tokens})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "http://localhost:3000"})
	assert.Error(t, err)
}
