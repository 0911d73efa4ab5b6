package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
)

// UploadFormField, multipart body'deki dosya alanının adı.
const UploadFormField = "file"

// Upload, dosyayı POST /api/uploads ile gönderir ve {id, url} döner.
// Göreli url, SignedURL'deki gibi baseURL ile tamamlanır.
//
// Hata eşlemesi:
//   - 429 → pkg.ErrRateLimited (ErrUpload ailesinden DEĞİL)
//   - 413 / 415 → pkg.ErrPayloadTooLarge / pkg.ErrUnsupportedType
//   - diğer her şey → pkg.ErrTransport
func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadedFile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, UploadFormField, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrTransport, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrTransport, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrTransport, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/uploads", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrTransport, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp models.UploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, wrapUpload("upload", err)
	}
	if resp.File.ID == "" {
		return nil, fmt.Errorf("%w: upload response has no file id", pkg.ErrTransport)
	}
	resp.File.URL = c.absolute(resp.File.URL)
	return &resp.File, nil
}

// SignedURL, fileID için kısa ömürlü bir görüntüleme URL'i ister.
// Sunucu göreli bir yol dönerse baseURL ile tamamlanır.
func (c *Client) SignedURL(ctx context.Context, fileID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/files/"+url.PathEscape(fileID)+"/url", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", pkg.ErrTransport, err)
	}

	var resp models.SignedURLResponse
	if err := c.do(req, &resp); err != nil {
		return "", wrapUpload("signed url", err)
	}
	if !resp.Success || resp.URL == "" {
		return "", fmt.Errorf("%w: signed url: %s", pkg.ErrTransport, resp.Error)
	}
	return c.absolute(resp.URL), nil
}

func (c *Client) absolute(u string) string {
	if u == "" {
		return ""
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.IsAbs() {
		return u
	}
	return c.baseURL + u
}

// wrapUpload, rate limit / boyut / tip hatalarını olduğu gibi bırakır,
// kalan her şeyi ErrTransport ile sarar.
func wrapUpload(op string, err error) error {
	switch {
	case errors.Is(err, pkg.ErrRateLimited),
		errors.Is(err, pkg.ErrPayloadTooLarge),
		errors.Is(err, pkg.ErrUnsupportedType):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%w: %s: %w", pkg.ErrTransport, op, err)
	}
}
