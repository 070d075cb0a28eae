package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rupesh-2/matrimonial-UI/internal/logging"
)

// loggingTransport records one structured entry per outbound request. It logs
// whether a credential was attached, never the credential itself.
type loggingTransport struct {
	next http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}

	start := time.Now()
	logger := logging.FromContext(req.Context()).With(
		slog.String("request_id", req.Header.Get("X-Request-ID")),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Bool("credential_present", req.Header.Get("Authorization") != ""),
	)

	resp, err := next.RoundTrip(req)
	if err != nil {
		logger.Warn("api request failed", slog.Duration("duration", time.Since(start)), slog.String("error", err.Error()))
		return nil, err
	}

	level := slog.LevelInfo
	if resp.StatusCode >= http.StatusBadRequest {
		level = slog.LevelWarn
	}
	logger.Log(req.Context(), level, "api request completed",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, nil
}
