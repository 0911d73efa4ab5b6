package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/chatflow/models"
	"github.com/akinalp/chatflow/pkg"
	"github.com/akinalp/chatflow/pkg/cache"
	"github.com/akinalp/chatflow/pkg/logger"
	"github.com/akinalp/chatflow/pkg/optimistic"
)

type syncFixture struct {
	api   *fakeAPI
	store *cache.Store[models.Message]
	svc   MessageSyncService
}

func newSyncFixture(api *fakeAPI) *syncFixture {
	var n atomic.Int64
	ids := optimistic.IDSourceFunc(func() (string, error) {
		return fmt.Sprintf("%s%d", models.OptimisticIDPrefix, n.Add(1)), nil
	})

	store := cache.NewStore[models.Message]()
	svc := NewMessageSyncService(api, store, optimistic.NewLedger(), ids, optimistic.NewPropagator(),
		models.Author{ID: "u1", Name: "Ada"}, logger.NewNop())
	return &syncFixture{api: api, store: store, svc: svc}
}

func (f *syncFixture) ids(scope cache.Scope) []string {
	pages, _ := f.store.Pages(scope)
	var out []string
	for _, p := range pages {
		for _, m := range p.Items {
			out = append(out, m.ID)
		}
	}
	return out
}

func (f *syncFixture) repliesCount(t *testing.T, channelID, rootID string) int {
	t.Helper()
	pages, _ := f.store.Pages(cache.ChannelFeed(channelID))
	for _, p := range pages {
		for _, m := range p.Items {
			if m.ID == rootID {
				return m.RepliesCount
			}
		}
	}
	t.Fatalf("root %s not cached", rootID)
	return 0
}

func textReq(channelID, text string, threadID *string) models.CreateMessageRequest {
	return models.CreateMessageRequest{
		ChannelID: channelID,
		Content:   json.RawMessage(fmt.Sprintf(`{"text":%q}`, text)),
		ThreadID:  threadID,
	}
}

func TestSend_OptimisticThenCommit(t *testing.T) {
	var seenDuringCall []string
	api := &fakeAPI{}
	f := newSyncFixture(api)
	api.create = func(_ context.Context, req models.CreateMessageRequest) (*models.Message, error) {
		seenDuringCall = f.ids(cache.ChannelFeed("c1"))
		return &models.Message{ID: "m1", ChannelID: "c1", Content: req.Content, AuthorID: "u1"}, nil
	}
	f.store.SetPages(cache.ChannelFeed("c1"), nil)

	msg, err := f.svc.Send(context.Background(), textReq("c1", "hi", nil))
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)

	require.Len(t, seenDuringCall, 1)
	assert.Equal(t, models.OptimisticIDPrefix+"1", seenDuringCall[0], "temp row must be visible before the server answers")

	pages, ok := f.store.Pages(cache.ChannelFeed("c1"))
	require.True(t, ok)
	require.Len(t, pages, 1)
	require.Len(t, pages[0].Items, 1)
	assert.Equal(t, "m1", pages[0].Items[0].ID)
}

func TestSend_FailureRollsBack(t *testing.T) {
	api := &fakeAPI{create: func(context.Context, models.CreateMessageRequest) (*models.Message, error) {
		return nil, errors.New("connection reset")
	}}
	f := newSyncFixture(api)
	f.store.SetPages(cache.ChannelFeed("c1"), nil)
	before, _ := f.store.Pages(cache.ChannelFeed("c1"))

	_, err := f.svc.Send(context.Background(), textReq("c1", "hi", nil))
	assert.True(t, errors.Is(err, pkg.ErrNetwork))

	after, ok := f.store.Pages(cache.ChannelFeed("c1"))
	assert.True(t, ok)
	assert.Equal(t, before, after)
}

func TestSend_ValidationErrorNeverTouchesCache(t *testing.T) {
	api := &fakeAPI{}
	f := newSyncFixture(api)
	f.store.SetPages(cache.ChannelFeed("c1"), nil)
	rev := f.store.Revision(cache.ChannelFeed("c1"))

	_, err := f.svc.Send(context.Background(), models.CreateMessageRequest{ChannelID: "c1"})
	assert.True(t, errors.Is(err, pkg.ErrBadRequest))
	assert.Equal(t, rev, f.store.Revision(cache.ChannelFeed("c1")))

	creates, _, _ := api.calls()
	assert.Zero(t, creates)
}

func seedRoot(f *syncFixture) {
	f.store.SetPages(cache.ChannelFeed("c1"), []cache.Page[models.Message]{
		{Items: []models.Message{{ID: "m1", ChannelID: "c1", RepliesCount: 0}}},
	})
	f.store.SetPages(cache.ThreadFeed("m1"), nil)
}

func TestSend_ReplyBumpsRootCounter(t *testing.T) {
	root := "m1"
	api := &fakeAPI{}
	f := newSyncFixture(api)
	seedRoot(f)

	var countDuringCall int
	api.create = func(_ context.Context, req models.CreateMessageRequest) (*models.Message, error) {
		countDuringCall = f.repliesCount(t, "c1", root)
		return &models.Message{ID: "r1", ChannelID: "c1", ThreadID: req.ThreadID}, nil
	}

	_, err := f.svc.Send(context.Background(), textReq("c1", "reply", &root))
	require.NoError(t, err)

	assert.Equal(t, 1, countDuringCall)
	assert.Equal(t, 1, f.repliesCount(t, "c1", root))
	assert.Equal(t, []string{"r1"}, f.ids(cache.ThreadFeed(root)))
}

// İki eşzamanlı yanıt: ilki onaylanır, ikincisi commit'ten önce başarısız olur.
func TestSend_ConcurrentRepliesOneFails(t *testing.T) {
	root := "m1"
	api := &fakeAPI{}
	f := newSyncFixture(api)
	seedRoot(f)

	started := make(chan string, 2)
	release := map[string]chan error{"ok": make(chan error), "fail": make(chan error)}
	api.create = func(_ context.Context, req models.CreateMessageRequest) (*models.Message, error) {
		var text struct{ Text string }
		_ = json.Unmarshal(req.Content, &text)
		started <- text.Text
		if err := <-release[text.Text]; err != nil {
			return nil, err
		}
		return &models.Message{ID: "r-" + text.Text, ChannelID: "c1", ThreadID: req.ThreadID}, nil
	}

	type result struct {
		msg *models.Message
		err error
	}
	okDone := make(chan result, 1)
	failDone := make(chan result, 1)

	go func() {
		m, err := f.svc.Send(context.Background(), textReq("c1", "ok", &root))
		okDone <- result{m, err}
	}()
	<-started
	go func() {
		m, err := f.svc.Send(context.Background(), textReq("c1", "fail", &root))
		failDone <- result{m, err}
	}()
	<-started

	assert.Equal(t, 2, f.repliesCount(t, "c1", root))

	release["ok"] <- nil
	r := <-okDone
	require.NoError(t, r.err)
	assert.Equal(t, 2, f.repliesCount(t, "c1", root))

	release["fail"] <- errors.New("server down")
	r = <-failDone
	require.Error(t, r.err)

	assert.Equal(t, 1, f.repliesCount(t, "c1", root))
	assert.Equal(t, []string{"r-ok"}, f.ids(cache.ThreadFeed(root)))
}

func TestSend_ReplyWithRootNotCached(t *testing.T) {
	root := "m1"
	f := newSyncFixture(&fakeAPI{})
	f.store.SetPages(cache.ThreadFeed(root), nil)

	_, err := f.svc.Send(context.Background(), textReq("c1", "reply", &root))
	require.NoError(t, err)

	_, ok := f.store.Pages(cache.ChannelFeed("c1"))
	assert.False(t, ok, "propagation must not fabricate a channel feed")
}

func TestSend_CommitMissRefetches(t *testing.T) {
	api := &fakeAPI{}
	f := newSyncFixture(api)
	f.store.SetPages(cache.ChannelFeed("c1"), nil)

	api.feed = func(context.Context, string, string) (*models.ChannelFeedPage, error) {
		return &models.ChannelFeedPage{Items: []models.Message{{ID: "m1"}}}, nil
	}
	api.create = func(context.Context, models.CreateMessageRequest) (*models.Message, error) {
		// Sunucu yanıtı gelmeden geçici satır refetch olmadan düşer.
		f.store.RemoveByID(cache.ChannelFeed("c1"), models.OptimisticIDPrefix+"1")
		return &models.Message{ID: "m1", ChannelID: "c1"}, nil
	}

	msg, err := f.svc.Send(context.Background(), textReq("c1", "hi", nil))
	require.NoError(t, err, "a lost optimistic row is not a user-facing error")
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, 1, api.feedCalls)
	assert.Equal(t, []string{"m1"}, f.ids(cache.ChannelFeed("c1")))
}

func TestSend_CommitAfterRefetchDoesNotFetchAgain(t *testing.T) {
	api := &fakeAPI{}
	f := newSyncFixture(api)
	f.store.SetPages(cache.ChannelFeed("c1"), nil)

	api.create = func(context.Context, models.CreateMessageRequest) (*models.Message, error) {
		// Sunucu yanıtı gelmeden başka bir ekran akışı tazeler.
		f.store.SetPages(cache.ChannelFeed("c1"), []cache.Page[models.Message]{{Items: []models.Message{{ID: "m1"}, {ID: "old"}}}})
		return &models.Message{ID: "m1", ChannelID: "c1"}, nil
	}

	msg, err := f.svc.Send(context.Background(), textReq("c1", "hi", nil))
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Zero(t, api.feedCalls, "fresh data is already in place")
	assert.Equal(t, []string{"m1", "old"}, f.ids(cache.ChannelFeed("c1")))
}

func TestSend_AttachmentOnOptimisticRow(t *testing.T) {
	api := &fakeAPI{}
	f := newSyncFixture(api)
	f.store.SetPages(cache.ChannelFeed("c1"), nil)

	var optimisticRef *models.AttachmentRef
	api.create = func(context.Context, models.CreateMessageRequest) (*models.Message, error) {
		pages, _ := f.store.Pages(cache.ChannelFeed("c1"))
		optimisticRef = pages[0].Items[0].Attachment
		return nil, errors.New("fail")
	}

	req := models.CreateMessageRequest{
		ChannelID:  "c1",
		Attachment: &models.AttachmentInput{FileID: "f1", ImageURL: "/uploads/f1"},
	}
	_, err := f.svc.Send(context.Background(), req)
	require.Error(t, err)
	require.NotNil(t, optimisticRef)
	assert.Equal(t, models.AttachmentRef{FileID: "f1", DisplayURL: "/uploads/f1"}, *optimisticRef)
}

func TestLoadOlder(t *testing.T) {
	api := &fakeAPI{feed: func(_ context.Context, _ string, cursor string) (*models.ChannelFeedPage, error) {
		switch cursor {
		case "":
			return &models.ChannelFeedPage{Items: []models.Message{{ID: "m3"}, {ID: "m2"}}, NextCursor: "p2"}, nil
		case "p2":
			return &models.ChannelFeedPage{Items: []models.Message{{ID: "m1"}}}, nil
		}
		return nil, fmt.Errorf("unexpected cursor %q", cursor)
	}}
	f := newSyncFixture(api)

	more, err := f.svc.LoadOlder(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, more)

	more, err = f.svc.LoadOlder(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, []string{"m3", "m2", "m1"}, f.ids(cache.ChannelFeed("c1")))

	more, err = f.svc.LoadOlder(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, more)
}

func TestLoadThreadView(t *testing.T) {
	api := &fakeAPI{
		feed: func(context.Context, string, string) (*models.ChannelFeedPage, error) {
			return &models.ChannelFeedPage{Items: []models.Message{{ID: "m1", RepliesCount: 2}}}, nil
		},
		thread: func(context.Context, string) (*models.ThreadList, error) {
			return &models.ThreadList{Parent: models.Message{ID: "m1"}, Messages: []models.Message{{ID: "r2"}, {ID: "r1"}}}, nil
		},
	}
	f := newSyncFixture(api)

	require.NoError(t, f.svc.LoadThreadView(context.Background(), "c1", "m1"))
	assert.Equal(t, []string{"m1"}, f.ids(cache.ChannelFeed("c1")))
	assert.Equal(t, []string{"r2", "r1"}, f.ids(cache.ThreadFeed("m1")))
}

func TestLoadThreadView_FailureLeavesCacheUntouched(t *testing.T) {
	api := &fakeAPI{thread: func(context.Context, string) (*models.ThreadList, error) {
		return nil, pkg.ErrNotFound
	}}
	f := newSyncFixture(api)

	err := f.svc.LoadThreadView(context.Background(), "c1", "m1")
	assert.True(t, errors.Is(err, pkg.ErrNotFound))
	_, ok := f.store.Pages(cache.ChannelFeed("c1"))
	assert.False(t, ok)
}
