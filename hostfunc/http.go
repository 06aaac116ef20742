package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

// HTTPConfig restricts outbound requests made by scripts. With no allowed
// hosts every request is refused.
type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
}

// HTTP performs allowlisted HTTP requests on behalf of scripts.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Register installs http_request and http_get.
func (h *HTTP) Register(r *Registry) {
	r.Register("http_request", h.Request)
	r.Register("http_get", h.Get)
}

// Get is Request with the method forced to GET.
func (h *HTTP) Get(ctx context.Context, args map[string]any) (any, error) {
	forwarded := make(map[string]any, len(args)+1)
	for k, v := range args {
		forwarded[k] = v
	}
	forwarded["method"] = http.MethodGet
	return h.Request(ctx, forwarded)
}

// Request performs a request described by args: method, url, body, headers.
// The reply is a map with status, body and headers.
func (h *HTTP) Request(ctx context.Context, args map[string]any) (any, error) {
	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
		http.MethodPatch, http.MethodHead, http.MethodOptions:
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}

	rawURL, _ := args["url"].(string)
	if err := h.checkURL(rawURL); err != nil {
		return nil, err
	}

	var body io.Reader
	if s, ok := args["body"].(string); ok && s != "" {
		if int64(len(s)) > h.cfg.MaxBodySize {
			return nil, errors.New("request body exceeds max size")
		}
		body = strings.NewReader(s)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	return map[string]any{
		"status":  resp.StatusCode,
		"body":    string(respBody),
		"headers": respHeaders,
	}, nil
}

func (h *HTTP) checkURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url required")
	}
	if len(rawURL) > h.cfg.MaxURLLength {
		return errors.New("url exceeds max length")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if len(h.cfg.AllowedHosts) == 0 {
		return errors.New("http not enabled")
	}
	if host := parsed.Hostname(); !h.hostAllowed(host) {
		return fmt.Errorf("host not allowed: %s", host)
	}
	return nil
}

func (h *HTTP) hostAllowed(host string) bool {
	for _, allowed := range h.cfg.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
