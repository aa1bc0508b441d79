package reporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lcx/iast/codec"
)

// TelemetryPath is the agent endpoint proxying telemetry to the backend.
const TelemetryPath = "/telemetry/proxy/api/v2/apmtelemetry"

// HTTPSender posts requests to an agent, encoded with the default codec.
type HTTPSender struct {
	url    string
	debug  bool
	client *http.Client
	codec  codec.Codec
}

// NewHTTPSender creates a sender posting to baseURL + TelemetryPath.
func NewHTTPSender(baseURL string, timeout time.Duration, debug bool) *HTTPSender {
	c := codec.Default()
	if c == nil {
		c, _ = codec.Get(codec.JSON)
	}
	return &HTTPSender{
		url:    strings.TrimRight(baseURL, "/") + TelemetryPath,
		debug:  debug,
		client: &http.Client{Timeout: timeout},
		codec:  c,
	}
}

func (s *HTTPSender) Name() string { return "http" }

func (s *HTTPSender) Send(ctx context.Context, req *Request) error {
	body, err := s.codec.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", s.codec.ContentType())
	httpReq.Header.Set("DD-Telemetry-API-Version", req.APIVersion)
	httpReq.Header.Set("DD-Telemetry-Request-Type", req.RequestType)
	if s.debug {
		httpReq.Header.Set("DD-Telemetry-Debug-Enabled", "true")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post telemetry: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post telemetry: unexpected status %d", resp.StatusCode)
	}
	return nil
}
