package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const userAgent = "sitecheck-link-checker/1.0"

// ProbeResult is the outcome of one external URL check.
type ProbeResult struct {
	URL    string
	OK     bool
	Status int
	// Reason is "timeout", "connection failed: ...", or "HTTP <code>".
	Reason string
}

// Prober checks external URLs with a HEAD request and falls back to GET.
type Prober struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewProber returns a prober that follows at most 10 redirects.
func NewProber(timeout time.Duration) *Prober {
	return &Prober{
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		Timeout: timeout,
	}
}

// Probe checks rawURL. The timeout bounds HEAD and any GET fallback together.
func (p *Prober) Probe(ctx context.Context, rawURL string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	res := p.do(ctx, http.MethodHead, rawURL)
	if res.OK {
		return res
	}
	// Some servers reject HEAD; fall back to GET.
	if res.Status == http.StatusMethodNotAllowed || res.Status == http.StatusForbidden ||
		(res.Status == 0 && ctx.Err() == nil) {
		return p.do(ctx, http.MethodGet, rawURL)
	}
	return res
}

func (p *Prober) do(ctx context.Context, method, rawURL string) ProbeResult {
	res := ProbeResult{URL: rawURL}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		res.Reason = "invalid URL: " + err.Error()
		return res
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		res.Reason = classifyError(ctx, err, p.Timeout)
		return res
	}
	_ = resp.Body.Close()
	res.Status = resp.StatusCode
	if resp.StatusCode < 400 {
		res.OK = true
		return res
	}
	res.Reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
	return res
}

func classifyError(ctx context.Context, err error, timeout time.Duration) string {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Sprintf("timeout after %s", timeout)
	}
	msg := err.Error()
	// url.Error repeats the method and URL; keep only the cause.
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	return "connection failed: " + msg
}
