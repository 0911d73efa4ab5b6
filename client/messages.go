package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
)

// CreateMessage, mesajı (veya thread yanıtını) oluşturur ve sunucunun
// atadığı id/timestamp/yazar bilgisiyle otoriter Message'ı döner.
//
// Her başarısızlık pkg.ErrNetwork ile sarılır: çağıran transaction'ı geri alır.
// Bu çağrıda timeout yoktur; iptal sadece ctx üzerinden olur.
func (c *Client) CreateMessage(ctx context.Context, in models.CreateMessageRequest) (*models.Message, error) {
	body, err := jsonBody(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrBadRequest, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(in.ChannelID)+"/messages", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var msg models.Message
	if err := c.do(req, &msg); err != nil {
		return nil, fmt.Errorf("%w: create message: %w", pkg.ErrNetwork, err)
	}
	return &msg, nil
}

// ListChannelFeed, kanal akışının bir sayfasını döner. cursor boşsa en yeni sayfa.
func (c *Client) ListChannelFeed(ctx context.Context, channelID, cursor string) (*models.ChannelFeedPage, error) {
	path := "/api/channels/" + url.PathEscape(channelID) + "/messages"
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrNetwork, err)
	}

	var page models.ChannelFeedPage
	if err := c.do(req, &page); err != nil {
		return nil, wrapRead("list channel feed", err)
	}
	return &page, nil
}

// ListThread, thread root mesajını ve yanıtlarını döner.
func (c *Client) ListThread(ctx context.Context, messageID string) (*models.ThreadList, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(messageID)+"/thread", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrNetwork, err)
	}

	var list models.ThreadList
	if err := c.do(req, &list); err != nil {
		return nil, wrapRead("list thread", err)
	}
	return &list, nil
}

// wrapRead, okuma hatalarını sarar. Sunucu yanıtları (*APIError) kendi
// domain error'unu taşır; sadece bağlantı hataları ErrNetwork olur.
func wrapRead(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", pkg.ErrNetwork, op, err)
}
