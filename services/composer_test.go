package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
)

type recordingSender struct {
	reqs []models.CreateMessageRequest
	err  error
}

func (s *recordingSender) Send(_ context.Context, req models.CreateMessageRequest) (*models.Message, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Message{ID: "m1"}, nil
}

func TestComposer_AttachFailureLeavesNoAttachment(t *testing.T) {
	sender := &recordingSender{}
	api := &fakeAPI{upload: func(context.Context, string, string, []byte) (*models.UploadedFile, error) {
		return nil, pkg.ErrRateLimited
	}}
	c := NewComposer(sender, newResolver(api, nil, 0), "c1", nil)

	err := c.Attach(context.Background(), Blob{Filename: "a.png", Data: pngBytes})
	assert.True(t, errors.Is(err, pkg.ErrRateLimited))

	_, ok := c.Pending()
	assert.False(t, ok)
	assert.Equal(t, err, c.InlineError())

	// Ek hatası metin gönderimini engellemez.
	_, err = c.Submit(context.Background(), json.RawMessage(`{"text":"still sends"}`))
	require.NoError(t, err)
	require.Len(t, sender.reqs, 1)
	assert.Nil(t, sender.reqs[0].Attachment)
	assert.Nil(t, c.InlineError())
}

func TestComposer_AttachWithoutPreviewStillSendsFileID(t *testing.T) {
	sender := &recordingSender{}
	api := &fakeAPI{
		upload: func(context.Context, string, string, []byte) (*models.UploadedFile, error) {
			return &models.UploadedFile{ID: "f7"}, nil
		},
		signedURL: func(context.Context, string) (string, error) { return "", pkg.ErrRateLimited },
	}
	c := NewComposer(sender, newResolver(api, nil, 0), "c1", nil)

	require.NoError(t, c.Attach(context.Background(), Blob{Filename: "a.png", Data: pngBytes}))
	p, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, PendingAttachment{FileID: "f7", Source: SourceNone}, p)

	_, err := c.Submit(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, sender.reqs[0].Attachment)
	assert.Equal(t, "f7", sender.reqs[0].Attachment.FileID)

	_, ok = c.Pending()
	assert.False(t, ok, "attachment is cleared after a successful send")
}

func TestComposer_SubmitFailureKeepsAttachment(t *testing.T) {
	sender := &recordingSender{err: pkg.ErrNetwork}
	root := "m1"
	c := NewComposer(sender, newResolver(&fakeAPI{}, nil, 0), "c1", &root)

	require.NoError(t, c.Attach(context.Background(), Blob{Filename: "a.png", Data: pngBytes}))
	_, err := c.Submit(context.Background(), json.RawMessage(`{"text":"x"}`))
	assert.True(t, errors.Is(err, pkg.ErrNetwork))

	p, ok := c.Pending()
	assert.True(t, ok)
	assert.Equal(t, "f1", p.FileID)
	assert.Equal(t, &root, sender.reqs[0].ThreadID)
}

func TestComposer_ClearAttachment(t *testing.T) {
	c := NewComposer(&recordingSender{}, newResolver(&fakeAPI{}, nil, 0), "c1", nil)
	require.NoError(t, c.Attach(context.Background(), Blob{Filename: "a.png", Data: pngBytes}))

	c.ClearAttachment()
	_, ok := c.Pending()
	assert.False(t, ok)
}
