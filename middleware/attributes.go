// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaegerlite/tracing"
	"github.com/jaegerlite/tracing/filter"
)

// notPassed is recorded for request properties that are unknown.
const notPassed = "not passed"

// Span attribute keys.
const (
	KeyRequestMethod     = attribute.Key("request.http.method")
	KeyRequestHost       = attribute.Key("request.http.host")
	KeyRequestTarget     = attribute.Key("request.http.target")
	KeyRequestURI        = attribute.Key("request.http.uri")
	KeyRequestScheme     = attribute.Key("request.http.scheme")
	KeyRequestFlavor     = attribute.Key("request.http.flavor")
	KeyRequestServerName = attribute.Key("request.http.server_name")
	KeyRequestUserAgent  = attribute.Key("request.http.user_agent")
	KeyRequestHeaders    = attribute.Key("request.http.headers")
	KeyRequestQuery      = attribute.Key("request.http.query")
	KeyRequestInput      = attribute.Key("request.http.input")
	KeyHostPort          = attribute.Key("request.net.host.port")
	KeyPeerIP            = attribute.Key("request.net.peer.ip")
	KeyPeerPort          = attribute.Key("request.net.peer.port")

	KeyResponseStatusCode = attribute.Key("response.http.status_code")
	KeyResponseHeaders    = attribute.Key("response.http.headers")
	KeyResponseContent    = attribute.Key("response.content")
	KeyResponseRaw        = attribute.Key("response.http.raw")
)

// SpanStatus returns the span status for an HTTP status code: an error
// for 4xx and 5xx, ok for 2xx, unset otherwise.
func SpanStatus(code int) (codes.Code, string) {
	switch {
	case code >= 400 && code < 600:
		return codes.Error, http.StatusText(code)
	case code >= 200 && code < 300:
		return codes.Ok, ""
	default:
		return codes.Unset, ""
	}
}

// RequestAttributes returns the attributes describing r. Headers are
// filtered and rendered by t. input, when non-nil, is the request input
// recorded as JSON after redaction.
func RequestAttributes(t *tracing.Tracer, r *http.Request, input map[string]any) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	serverName, hostPort := notPassed, notPassed
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if host, port, err := net.SplitHostPort(addr.String()); err == nil {
			serverName, hostPort = host, port
		}
	}

	peerIP, peerPort := notPassed, notPassed
	if host, port, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peerIP, peerPort = host, port
	} else if r.RemoteAddr != "" {
		peerIP = r.RemoteAddr
	}

	headers := filter.Headers(r.Header.Clone())
	if headers == nil {
		headers = filter.Headers{}
	}
	if r.Host != "" {
		headers["Host"] = []string{r.Host}
	}

	attrs := []attribute.KeyValue{
		KeyRequestMethod.String(r.Method),
		KeyRequestHost.String(scheme + "://" + r.Host),
		KeyRequestTarget.String("/" + strings.TrimPrefix(r.URL.Path, "/")),
		KeyRequestURI.String(r.URL.RequestURI()),
		KeyRequestScheme.String(scheme),
		KeyRequestFlavor.String(orNotPassed(r.Proto)),
		KeyRequestServerName.String(serverName),
		KeyRequestUserAgent.String(orNotPassed(r.UserAgent())),
		KeyRequestHeaders.String(t.TransformedHeaders(headers)),
		KeyHostPort.String(hostPort),
		KeyPeerIP.String(peerIP),
		KeyPeerPort.String(peerPort),
	}
	if input != nil {
		if b, err := json.Marshal(t.FilterInput(input)); err == nil {
			attrs = append(attrs, KeyRequestInput.String(string(b)))
		} else {
			t.Logger().Debug("tracing: unencodable request input", "error", err)
		}
	}
	return attrs
}

// ResponseAttributes returns the attributes describing a response. content
// is recorded when it is non-nil.
func ResponseAttributes(t *tracing.Tracer, status int, header http.Header, content []byte) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		KeyResponseStatusCode.Int(status),
		KeyResponseHeaders.String(t.TransformedHeaders(filter.Headers(header))),
	}
	if content != nil {
		attrs = append(attrs, KeyResponseContent.String(string(content)))
	}
	return attrs
}

// PayloadEligible reports whether a body of contentType is recorded.
// Parameters such as charset are ignored.
func PayloadEligible(contentTypes []string, contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	for _, ct := range contentTypes {
		if strings.EqualFold(ct, mediaType) {
			return true
		}
	}
	return false
}

// RequestInput returns the input of r: its query parameters overlaid with
// the fields of a JSON object body. The body is restored so the next
// handler can read it. nil is returned if recording input is disabled or
// the content type is not eligible.
func RequestInput(t *tracing.Tracer, r *http.Request) map[string]any {
	cfg := t.Config()
	if !cfg.SendInput || !PayloadEligible(cfg.Middleware.Payload.ContentTypes, r.Header.Get("Content-Type")) {
		return nil
	}

	input := make(map[string]any)
	for k, v := range r.URL.Query() {
		if len(v) == 1 {
			input[k] = v[0]
		} else {
			input[k] = v
		}
	}

	if r.Body == nil || r.Body == http.NoBody {
		return input
	}
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		t.Logger().Debug("tracing: read request input", "error", err)
		return input
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for k, v := range fields {
			input[k] = v
		}
	}
	return input
}

func orNotPassed(s string) string {
	if s == "" {
		return notPassed
	}
	return s
}
