// Package orchestrator is the HTTP client for the caption/translation/speech backend.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/sayshot/internal/config"
)

const (
	HeaderCaption    = "X-Caption-Text"
	HeaderOriginal   = "X-Original-Text"
	HeaderTranslated = "X-Translated"

	// NoCaption is shown when an image response carries no caption header.
	NoCaption = "No caption available"

	DefaultTimeout       = 120 * time.Second
	DefaultHealthTimeout = 5 * time.Second

	DefaultMaxAudioBytes = 64 << 20
)

// Config controls endpoint layout and timeouts.
type Config struct {
	BaseURL         string
	ProcessPath     string
	ProcessTextPath string
	HealthPath      string
	Timeout         time.Duration
	HealthTimeout   time.Duration
	// MaxAudioBytes caps the response body; larger bodies fail the request.
	MaxAudioBytes int64
}

// ConfigFrom maps the backend config block onto client settings.
func ConfigFrom(b config.BackendConfig) Config {
	return Config{
		BaseURL:         b.URL,
		ProcessPath:     b.ProcessPath,
		ProcessTextPath: b.ProcessTextPath,
		HealthPath:      b.HealthPath,
		Timeout:         b.Timeout(),
	}
}

// Result is one successful backend response.
type Result struct {
	Audio           []byte
	ContentType     string
	Caption         string
	OriginalCaption string
	WasTranslated   bool
	Latency         time.Duration
}

// Client issues backend requests. It performs no UI work.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// New validates cfg and returns a client. A nil httpClient uses a dedicated
// client without its own timeout; per-request contexts bound each call.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend url is empty")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", cfg.BaseURL, err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("backend url %q has no host", cfg.BaseURL)
	}

	if cfg.ProcessPath == "" {
		cfg.ProcessPath = "/api/process"
	}
	if cfg.ProcessTextPath == "" {
		cfg.ProcessTextPath = "/api/process_text"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/api/health"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{cfg: cfg, base: base, http: httpClient, logger: logger}, nil
}

// Config returns the effective configuration after defaults.
func (c *Client) Config() Config {
	return c.cfg
}

// SendImage uploads a PNG as multipart field "file".
func (c *Client) SendImage(ctx context.Context, png []byte, translate bool) (Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="screenshot.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		return Result{}, fmt.Errorf("create multipart file field: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return Result{}, fmt.Errorf("write multipart file field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart body: %w", err)
	}

	result, err := c.post(ctx, c.cfg.ProcessPath, translate, writer.FormDataContentType(), body.Bytes())
	if err != nil {
		return Result{}, err
	}
	if result.Caption == "" {
		result.Caption = NoCaption
	}
	return result, nil
}

// SendText posts {"text": text}.
func (c *Client) SendText(ctx context.Context, text string, translate bool) (Result, error) {
	payload, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("encode text payload: %w", err)
	}

	result, err := c.post(ctx, c.cfg.ProcessTextPath, translate, "application/json", payload)
	if err != nil {
		return Result{}, err
	}
	if result.Caption == "" {
		result.Caption = text
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, translate bool, contentType string, body []byte) (Result, error) {
	endpoint := c.endpoint(path, translate)

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "audio/*, application/octet-stream")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, c.transportError(ctx, reqCtx, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Endpoint: path, StatusCode: resp.StatusCode, Detail: statusDetail(detail)}
		c.logDebug("backend status error", "endpoint", path, "status", resp.StatusCode, "status_text", statusText(resp.StatusCode))
		return Result{}, statusErr
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxAudioBytes+1))
	if err == nil && int64(len(audio)) > c.cfg.MaxAudioBytes {
		return Result{}, fmt.Errorf("%s: %w (limit %d bytes)", path, ErrAudioTooLarge, c.cfg.MaxAudioBytes)
	}
	if err != nil {
		// The response started; a deadline here still counts as a timeout.
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, &TimeoutError{Endpoint: path, Timeout: c.cfg.Timeout, Err: err}
		}
		return Result{}, &NetworkError{Endpoint: path, Err: fmt.Errorf("read response body: %w", err)}
	}

	wasTranslated := strings.EqualFold(strings.TrimSpace(resp.Header.Get(HeaderTranslated)), "true")
	result := Result{
		Audio:         audio,
		ContentType:   resp.Header.Get("Content-Type"),
		Caption:       strings.TrimSpace(resp.Header.Get(HeaderCaption)),
		WasTranslated: wasTranslated,
		Latency:       time.Since(started),
	}
	if wasTranslated {
		result.OriginalCaption = strings.TrimSpace(resp.Header.Get(HeaderOriginal))
	}
	return result, nil
}

func (c *Client) transportError(parent context.Context, reqCtx context.Context, endpoint string, err error) error {
	path := c.pathOf(endpoint)
	if parent.Err() != nil {
		// Caller cancellation is not a backend failure.
		return fmt.Errorf("request to %s: %w", path, parent.Err())
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || isTimeout(err) {
		return &TimeoutError{Endpoint: path, Timeout: c.cfg.Timeout, Err: err}
	}
	return &NetworkError{Endpoint: path, Err: err}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) endpoint(path string, translate bool) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	if translate {
		u.RawQuery = url.Values{"translate": []string{"true"}}.Encode()
	}
	return u.String()
}

func (c *Client) pathOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Path
}

func (c *Client) logDebug(msg string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Debug(msg, args...)
}
