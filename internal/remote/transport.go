package remote

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-Id"

// tracingTransport tags each request with an id and logs its outcome.
// It never logs bodies or the Authorization header.
type tracingTransport struct {
	base http.RoundTripper
	log  *zap.Logger
}

func newTracingTransport(base http.RoundTripper, log *zap.Logger) *tracingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &tracingTransport{base: base, log: log}
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.New().String()
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, id)
	}
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	fields := []zap.Field{
		zap.String("request_id", id),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		t.log.Warn("request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	t.log.Debug("request done", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}
