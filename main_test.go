package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/chatflow/client"
	"github.com/akinalp/chatflow/config"
	"github.com/akinalp/chatflow/database"
	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/pkg/metrics"
	"github.com/akinalp/chatflow/pkg/ratelimit"
)

const testJWTSecret = "test-jwt-secret"

var testPNG = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server:    config.ServerConfig{CORSOrigins: []string{"*"}},
		Database:  config.DatabaseConfig{Path: filepath.Join(dir, "test.db")},
		JWT:       config.JWTConfig{Secret: testJWTSecret},
		Upload:    config.UploadConfig{Dir: dir, MaxSize: 1 << 10},
		SignedURL: config.SignedURLConfig{Secret: strings.Repeat("s", 32), TTL: time.Minute},
		Admission: config.AdmissionConfig{UploadPerMinute: 10, SignedURLPerMinute: 30},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	db, err := database.New(cfg.Database.Path, database.Migrations(), logger.NewNop())
	require.NoError(t, err)

	handler, stop := newApp(cfg, db, logger.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		stop()
		db.Close()
	})
	return srv
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	claims := models.TokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func multipartBody(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "a.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestGateway_UploadSignedURLRoundTrip(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	c := client.New(srv.URL, tokenFor(t, "u1"), client.WithHTTPClient(srv.Client()))
	ctx := context.Background()

	file, err := c.Upload(ctx, "cat.png", "image/png", testPNG)
	require.NoError(t, err)
	assert.NotEmpty(t, file.ID)
	assert.Contains(t, file.URL, "/api/files/"+file.ID+"/content?")

	signed, err := c.SignedURL(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, srv.URL), "relative url is made absolute: %s", signed)

	resp, err := srv.Client().Get(signed)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, testPNG, body)

	// İmza bozulursa içerik verilmez.
	tampered, err := srv.Client().Get(strings.Replace(signed, "sig=", "sig=x", 1))
	require.NoError(t, err)
	tampered.Body.Close()
	assert.Equal(t, http.StatusForbidden, tampered.StatusCode)
}

func TestGateway_UploadRejections(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	c := client.New(srv.URL, tokenFor(t, "u1"), client.WithHTTPClient(srv.Client()))
	ctx := context.Background()

	_, err := c.Upload(ctx, "big.png", "image/png", append(append([]byte(nil), testPNG...), make([]byte, 2<<10)...))
	assert.True(t, errors.Is(err, pkg.ErrPayloadTooLarge), "got %v", err)

	_, err = c.Upload(ctx, "doc.pdf", "application/pdf", []byte("%PDF-1.7\n"))
	assert.True(t, errors.Is(err, pkg.ErrUnsupportedType), "got %v", err)

	// Client Content-Type'ı yalan söylese bile içerik belirleyicidir.
	_, err = c.Upload(ctx, "fake.png", "image/png", []byte("<svg xmlns=\"http://www.w3.org/2000/svg\"></svg>"))
	assert.True(t, errors.Is(err, pkg.ErrUnsupportedType), "got %v", err)
}

func TestGateway_EleventhUploadIsRateLimited(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	c := client.New(srv.URL, tokenFor(t, "u1"), client.WithHTTPClient(srv.Client()))
	ctx := context.Background()

	denied := metrics.AdmissionDenials.WithLabelValues(string(ratelimit.ClassUpload))
	deniedBefore := testutil.ToFloat64(denied)

	for i := 0; i < 10; i++ {
		_, err := c.Upload(ctx, "a.png", "image/png", testPNG)
		require.NoError(t, err, "upload %d", i+1)
	}

	body, contentType := multipartBody(t, testPNG)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/uploads", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1"))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "6", resp.Header.Get("Retry-After"))

	_, err = c.Upload(ctx, "a.png", "image/png", testPNG)
	assert.True(t, errors.Is(err, pkg.ErrRateLimited))
	assert.False(t, errors.Is(err, pkg.ErrUpload), "rate limit is not an upload error")
	assert.Equal(t, deniedBefore+2, testutil.ToFloat64(denied))

	// Bucket'lar kullanıcı başınadır.
	other := client.New(srv.URL, tokenFor(t, "u2"), client.WithHTTPClient(srv.Client()))
	_, err = other.Upload(ctx, "a.png", "image/png", testPNG)
	assert.NoError(t, err)
}

func TestGateway_RequiresIdentity(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"bad token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/files/f1/url", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestGateway_SignedURLUnknownFile(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	c := client.New(srv.URL, tokenFor(t, "u1"), client.WithHTTPClient(srv.Client()))

	_, err := c.SignedURL(context.Background(), "missing")
	assert.True(t, errors.Is(err, pkg.ErrTransport), "got %v", err)
	assert.True(t, errors.Is(err, pkg.ErrNotFound), "got %v", err)
}

func TestGateway_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	for _, path := range []string{"/api/health", "/metrics"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
