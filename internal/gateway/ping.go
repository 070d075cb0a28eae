package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Status describes server reachability.
type Status struct {
	Online  bool
	URL     string
	Latency time.Duration
	Reason  string
}

// Ping probes the API root without credentials. Any HTTP answer below 500
// counts as online; transport failures are described in Reason.
func (c *Client) Ping(ctx context.Context) Status {
	start := time.Now()
	st := Status{URL: c.base.String()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), nil)
	if err != nil {
		st.Reason = err.Error()
		return st
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", c.newID())

	resp, err := c.http.Do(req)
	st.Latency = time.Since(start)
	if err != nil {
		st.Reason = describeTransportError(err)
		return st
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		st.Reason = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return st
	}
	st.Online = true
	return st
}

func describeTransportError(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused - server is not running"
	case errors.As(err, &dnsErr):
		return "host not found - check the API base URL"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timed out waiting for the server"
	default:
		return err.Error()
	}
}
