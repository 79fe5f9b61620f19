package observability

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// userAgent identifies every outbound HTTP call this process makes to an
// LLM backend or an S3-compatible endpoint, so operators can pick
// taskmesh's traffic out of a shared gateway's access log. The Qdrant
// backend speaks gRPC and does not carry it.
const userAgent = "taskmesh-orchestratord/1.0 (+otelhttp)"

// NewHTTPClient returns an http.Client instrumented with otelhttp tracing,
// debug-level request logging (bodies redacted via RedactJSON), and a
// standard User-Agent header. The router's LLM backend clients and the S3
// archive store build their HTTP clients here; the Qdrant backend uses a
// gRPC client and does not go through it.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	rt = &debugLoggingTransport{rt: rt}
	base.Transport = otelhttp.NewTransport(rt)
	return WithHeaders(base, map[string]string{"User-Agent": userAgent})
}

// debugLoggingTransport logs outbound requests at debug level with
// sensitive JSON fields redacted. Non-JSON bodies (S3 object payloads)
// are logged by size only, never dumped.
type debugLoggingTransport struct {
	rt http.RoundTripper
}

func (d *debugLoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if e := log.Debug(); e.Enabled() && req.Body != nil {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err == nil {
			req = req.Clone(req.Context())
			req.Body = io.NopCloser(bytes.NewReader(body))
			ev := log.Debug().Str("method", req.Method).Str("url", req.URL.String())
			if json.Valid(body) {
				ev.RawJSON("body", RedactJSON(body))
			} else {
				ev.Int("body_bytes", len(body))
			}
			ev.Msg("outbound http request")
		}
	}
	return d.rt.RoundTrip(req)
}

type headerTransport struct {
	rt      http.RoundTripper
	headers map[string]string
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range h.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return h.rt.RoundTrip(req)
}

// WithHeaders wraps base's transport so every outbound request carries the
// given headers, without overwriting any header the caller already set.
func WithHeaders(base *http.Client, headers map[string]string) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = &headerTransport{rt: rt, headers: headers}
	return base
}
