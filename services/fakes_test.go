package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/akinalp/chatflow/models"
)

// fakeAPI, MessageAPI ve UploadAPI'nin bellek içi sahtesi.
// Her fonksiyon alanı nil ise makul bir varsayılan davranış kullanılır.
type fakeAPI struct {
	mu sync.Mutex

	create    func(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error)
	feed      func(ctx context.Context, channelID, cursor string) (*models.ChannelFeedPage, error)
	thread    func(ctx context.Context, messageID string) (*models.ThreadList, error)
	upload    func(ctx context.Context, filename, contentType string, data []byte) (*models.UploadedFile, error)
	signedURL func(ctx context.Context, fileID string) (string, error)

	createCalls int
	uploadCalls int
	lookupCalls int
	feedCalls   int
	threadCalls int
}

func (f *fakeAPI) CreateMessage(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error) {
	f.mu.Lock()
	f.createCalls++
	n := f.createCalls
	f.mu.Unlock()

	if f.create != nil {
		return f.create(ctx, req)
	}
	return &models.Message{ID: fmt.Sprintf("m%d", n), ChannelID: req.ChannelID, Content: req.Content, ThreadID: req.ThreadID}, nil
}

func (f *fakeAPI) ListChannelFeed(ctx context.Context, channelID, cursor string) (*models.ChannelFeedPage, error) {
	f.mu.Lock()
	f.feedCalls++
	f.mu.Unlock()

	if f.feed != nil {
		return f.feed(ctx, channelID, cursor)
	}
	return &models.ChannelFeedPage{}, nil
}

func (f *fakeAPI) ListThread(ctx context.Context, messageID string) (*models.ThreadList, error) {
	f.mu.Lock()
	f.threadCalls++
	f.mu.Unlock()

	if f.thread != nil {
		return f.thread(ctx, messageID)
	}
	return &models.ThreadList{Parent: models.Message{ID: messageID}}, nil
}

func (f *fakeAPI) Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadedFile, error) {
	f.mu.Lock()
	f.uploadCalls++
	f.mu.Unlock()

	if f.upload != nil {
		return f.upload(ctx, filename, contentType, data)
	}
	return &models.UploadedFile{ID: "f1", URL: "/uploads/f1"}, nil
}

func (f *fakeAPI) SignedURL(ctx context.Context, fileID string) (string, error) {
	f.mu.Lock()
	f.lookupCalls++
	f.mu.Unlock()

	if f.signedURL != nil {
		return f.signedURL(ctx, fileID)
	}
	return "https://cdn.example/" + fileID + "?sig=x", nil
}

func (f *fakeAPI) calls() (create, upload, lookup int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.uploadCalls, f.lookupCalls
}

// pngBytes, mimetype'ın image/png olarak tanıyacağı en küçük içerik.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
