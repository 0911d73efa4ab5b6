// Package client, chat API'sinin HTTP istemcisi.
//
// Client engine (services.MessageSyncService, services.AttachmentResolver)
// sunucuyla sadece bu paket üzerinden konuşur. Servisler *Client yerine
// küçük interface'ler bekler; testlerde sahte API kolayca takılır.
//
// Hata eşlemesi:
//   - HTTP 429              → pkg.ErrRateLimited (asla transport hatası sayılmaz)
//   - HTTP 413 / 415        → pkg.ErrPayloadTooLarge / pkg.ErrUnsupportedType
//   - diğer 4xx/5xx         → *APIError (status + sunucu mesajı)
//   - bağlantı/decode hatası → çağıran metoda göre pkg.ErrNetwork veya pkg.ErrTransport
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akinalp/chatflow/pkg"
	"github.com/akinalp/chatflow/pkg/logger"
)

// maxErrorBody, hata yanıtlarından okunacak maksimum byte.
const maxErrorBody = 4 << 10

// APIError, sunucunun 2xx dışı bir status ile döndüğü yanıt.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// Unwrap, status'u domain error'una eşler; errors.Is bu sayede çalışır.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusTooManyRequests:
		return pkg.ErrRateLimited
	case http.StatusRequestEntityTooLarge:
		return pkg.ErrPayloadTooLarge
	case http.StatusUnsupportedMediaType:
		return pkg.ErrUnsupportedType
	case http.StatusBadRequest:
		return pkg.ErrBadRequest
	case http.StatusUnauthorized:
		return pkg.ErrUnauthorized
	case http.StatusForbidden:
		return pkg.ErrForbidden
	case http.StatusNotFound:
		return pkg.ErrNotFound
	default:
		return nil
	}
}

// Client, API istemcisi. Tüm metodlar context'e saygı duyar.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logger.Logger
}

// Option, Client için fonksiyonel opsiyon.
type Option func(*Client)

// WithHTTPClient, özel bir *http.Client kullanır (testlerde httptest sunucusunun client'ı).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger, istek log'ları için logger verir.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l.Named("api") }
}

// New, baseURL'e (ör: "http://localhost:9090") bağlanan bir Client oluşturur.
// token boş değilse her isteğe "Authorization: Bearer <token>" eklenir.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newRequest, yetki header'ı eklenmiş bir istek oluşturur.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do, isteği gönderir ve 2xx yanıtı out'a decode eder.
//
// Dönen hata iki türden biridir:
//   - *APIError: sunucu yanıt verdi ama 2xx değil
//   - diğer: bağlantı, context veya decode hatası (çağıran sarar)
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("request done",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &body); err == nil {
		msg = body.Error
	} else {
		msg = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
