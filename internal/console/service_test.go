package console

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/livedesk/internal/adapter/adminapi"
	"github.com/xiaot623/livedesk/internal/config"
	"github.com/xiaot623/livedesk/internal/dispatch"
	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/policy"
	"github.com/xiaot623/livedesk/internal/protocol"
	"github.com/xiaot623/livedesk/internal/repository"
)

type fakeAPI struct {
	mu       sync.Mutex
	chats    []domain.Chat
	details  map[string][]domain.ChatDetails // pages by chat, index 0 is page 1
	closed   []string
	listErr  error
	listHits int

	// onDetails runs before a transcript page is served.
	onDetails func()
}

func (f *fakeAPI) ListChats(ctx context.Context, params adminapi.ListChatsParams) (*adminapi.ChatList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &adminapi.ChatList{Chats: append([]domain.Chat{}, f.chats...)}, nil
}

func (f *fakeAPI) GetChatDetails(ctx context.Context, chatID string, page, limit int) (*domain.ChatDetails, error) {
	if f.onDetails != nil {
		f.onDetails()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pages, ok := f.details[chatID]
	if !ok || page < 1 || page > len(pages) {
		return nil, &adminapi.APIError{Status: http.StatusNotFound, Message: "Chat not found"}
	}
	d := pages[page-1].Clone()
	return &d, nil
}

func (f *fakeAPI) CloseChat(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, chatID)
	return nil
}

func (f *fakeAPI) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	return &domain.DashboardStats{TotalChats: len(f.chats)}, nil
}

type fakeChannel struct {
	mu          sync.Mutex
	connected   bool
	sent        []protocol.Command
	events      []func(domain.Event)
	lifecycles  []func(domain.Lifecycle)
	onConnected func(ctx context.Context)
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) Send(cmd protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeChannel) Subscribe(fn func(domain.Event))          { f.events = append(f.events, fn) }
func (f *fakeChannel) OnLifecycle(fn func(domain.Lifecycle))    { f.lifecycles = append(f.lifecycles, fn) }
func (f *fakeChannel) OnConnected(fn func(ctx context.Context)) { f.onConnected = fn }

func (f *fakeChannel) Run(ctx context.Context) error {
	f.connect(ctx)
	<-ctx.Done()
	return nil
}

func (f *fakeChannel) connect(ctx context.Context) {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.lifecycle(domain.LifecycleConnected)
	if f.onConnected != nil {
		f.onConnected(ctx)
	}
}

func (f *fakeChannel) emit(ev domain.Event) {
	for _, fn := range f.events {
		fn(ev)
	}
}

func (f *fakeChannel) lifecycle(st domain.LifecycleState) {
	for _, fn := range f.lifecycles {
		fn(domain.Lifecycle{State: st, At: time.Now()})
	}
}

func (f *fakeChannel) Sent() []protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Command{}, f.sent...)
}

type fixture struct {
	svc     *Service
	api     *fakeAPI
	ch      *fakeChannel
	journal *repository.SQLiteJournal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.API.PageSize = 2

	api := &fakeAPI{
		chats: []domain.Chat{
			{ID: "c1", SessionID: "session-one-long", IsActive: true, MessageCount: 3, LastMessage: &domain.Message{ID: "m3"}},
			{ID: "c2", SessionID: "s2", IsActive: false, MessageCount: 1},
		},
		details: map[string][]domain.ChatDetails{
			"c1": {
				{
					Chat:       domain.Chat{ID: "c1", SessionID: "session-one-long", IsActive: true, MessageCount: 3},
					Messages:   []domain.Message{{ID: "m2"}, {ID: "m3"}},
					Pagination: domain.Pagination{Page: 1, Limit: 2, Total: 3, HasMore: true},
				},
				{
					Chat:       domain.Chat{ID: "c1", SessionID: "session-one-long", IsActive: true, MessageCount: 3},
					Messages:   []domain.Message{{ID: "m1"}},
					Pagination: domain.Pagination{Page: 2, Limit: 2, Total: 3, HasMore: false},
				},
			},
		},
	}

	journal, err := repository.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	ch := &fakeChannel{}
	svc := New(cfg, Deps{API: api, Channel: ch, Policy: engine, Journal: journal})
	return &fixture{svc: svc, api: api, ch: ch, journal: journal}
}

func userMessage(chatID, sessionID, id string) domain.MessageReceived {
	return domain.MessageReceived{
		Kind:      domain.MessageKindUser,
		ChatID:    chatID,
		SessionID: sessionID,
		Message:   domain.Message{ID: id, Content: "hello", Sender: domain.SenderUser, Timestamp: time.Now()},
	}
}

func TestRefreshAndLiveMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RefreshChats(ctx))

	f.ch.emit(userMessage("c1", "session-one-long", "m4"))
	// Replay of a seeded message is ignored.
	f.ch.emit(userMessage("c1", "session-one-long", "m3"))

	v := f.svc.View()
	require.Len(t, v.Chats, 2)
	assert.Equal(t, 4, v.Chats[0].MessageCount)
	assert.Equal(t, "m4", v.Chats[0].LastMessage.ID)

	notices := f.svc.Notices(0)
	require.Len(t, notices, 1)
	assert.Equal(t, "New message from session-...", notices[0].Message)

	activity, err := f.svc.Activity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, "m4", activity[0].MessageID)
}

func TestFocusAndLoadOlder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RefreshChats(ctx))

	focus, err := f.svc.FocusChat(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, focus.Messages, 2)

	f.ch.emit(userMessage("c1", "session-one-long", "m4"))

	more, err := f.svc.LoadOlder(ctx)
	require.NoError(t, err)
	assert.True(t, more)

	got, ok := f.svc.Store().Focused()
	require.True(t, ok)
	ids := []string{}
	for _, m := range got.Messages {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids)
	assert.Equal(t, 4, got.MessageCount)
	assert.Equal(t, 4, f.svc.View().Chats[0].MessageCount)

	more, err = f.svc.LoadOlder(ctx)
	require.NoError(t, err)
	assert.False(t, more)

	f.svc.ClearFocus()
	_, err = f.svc.LoadOlder(ctx)
	assert.ErrorIs(t, err, ErrNoFocus)
}

func transcriptIDs(t *testing.T, f *fixture) []string {
	t.Helper()
	focus, ok := f.svc.Store().Focused()
	require.True(t, ok)
	ids := []string{}
	for _, m := range focus.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestReconnectKeepsLoadedTranscript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RefreshChats(ctx))

	_, err := f.svc.FocusChat(ctx, "c1")
	require.NoError(t, err)
	more, err := f.svc.LoadOlder(ctx)
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, []string{"m1", "m2", "m3"}, transcriptIDs(t, f))

	// m5 was written upstream while the socket was down.
	f.api.mu.Lock()
	f.api.details["c1"][0] = domain.ChatDetails{
		Chat:       domain.Chat{ID: "c1", SessionID: "session-one-long", IsActive: true, MessageCount: 4},
		Messages:   []domain.Message{{ID: "m3"}, {ID: "m5"}},
		Pagination: domain.Pagination{Page: 1, Limit: 2, Total: 4, HasMore: true},
	}
	f.api.mu.Unlock()

	f.ch.connect(ctx)

	assert.Equal(t, []string{"m1", "m2", "m3", "m5"}, transcriptIDs(t, f))
	focus, _ := f.svc.Store().Focused()
	assert.False(t, focus.Pagination.HasMore)
	assert.Equal(t, 4, focus.MessageCount)

	more, err = f.svc.LoadOlder(ctx)
	require.NoError(t, err)
	assert.False(t, more)
}

func TestMessageDuringFocusFetchIsKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RefreshChats(ctx))

	var once sync.Once
	f.api.onDetails = func() {
		once.Do(func() { f.ch.emit(userMessage("c1", "session-one-long", "m-live")) })
	}

	focus, err := f.svc.FocusChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3", "m-live"}, transcriptIDs(t, f))
	assert.Len(t, focus.Messages, 3)
	assert.Equal(t, 4, focus.MessageCount)
	assert.Equal(t, "m-live", f.svc.View().Chats[0].LastMessage.ID)

	f.ch.emit(userMessage("c1", "session-one-long", "m-live"))
	assert.Equal(t, []string{"m2", "m3", "m-live"}, transcriptIDs(t, f))
	assert.Equal(t, 4, f.svc.View().Chats[0].MessageCount)
}

func TestFocusUnknownChat(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.FocusChat(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownChat)
}

func TestCommandsRequireConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RefreshChats(ctx))

	err := f.svc.SendReply(ctx, "c1", "hi")
	assert.ErrorIs(t, err, dispatch.ErrNotConnected)
	assert.Empty(t, f.ch.Sent())
	// No optimistic echo.
	assert.Equal(t, 3, f.svc.View().Chats[0].MessageCount)
}

func TestCommandsForwardedWithSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ch.connect(ctx)

	require.NoError(t, f.svc.SendReply(ctx, "c1", "hi"))
	require.NoError(t, f.svc.SetTyping(ctx, "c1", true))
	require.NoError(t, f.svc.SetTyping(ctx, "c1", false))
	require.NoError(t, f.svc.ToggleAI(ctx, "c2", true))

	sent := f.ch.Sent()
	require.Len(t, sent, 4)
	assert.Equal(t, &protocol.ReplySend{SessionID: "session-one-long", ChatID: "c1", Content: "hi"}, sent[0])
	assert.Equal(t, protocol.TypeTypingStart, sent[1].CommandType())
	assert.Equal(t, protocol.TypeTypingStop, sent[2].CommandType())
	assert.Equal(t, &protocol.AIToggle{ChatID: "c2", Enabled: true}, sent[3])

	// The toggle is not applied until the server confirms it.
	assert.False(t, f.svc.View().Chats[1].IsAIEnabled)
	f.ch.emit(domain.AIToggled{ChatID: "c2", Enabled: true})
	assert.True(t, f.svc.View().Chats[1].IsAIEnabled)
}

func TestPolicyAndUnknownChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ch.connect(ctx)

	assert.ErrorIs(t, f.svc.SendReply(ctx, "c1", "   "), ErrCommandBlocked)
	assert.ErrorIs(t, f.svc.SendReply(ctx, "c2", "hello"), ErrCommandBlocked)
	assert.ErrorIs(t, f.svc.SendReply(ctx, "c9", "hello"), ErrUnknownChat)
	assert.ErrorIs(t, f.svc.ToggleAI(ctx, "c9", true), ErrUnknownChat)
	assert.Empty(t, f.ch.Sent())
}

func TestCloseChatAppliesConfirmedClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RefreshChats(ctx))

	require.NoError(t, f.svc.CloseChat(ctx, "c1"))
	assert.Equal(t, []string{"c1"}, f.api.closed)
	assert.False(t, f.svc.View().Chats[0].IsActive)

	assert.ErrorIs(t, f.svc.CloseChat(ctx, "c9"), ErrUnknownChat)
}

func TestRunResyncsOnConnect(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	require.Eventually(t, f.svc.Connected, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		f.api.mu.Lock()
		defer f.api.mu.Unlock()
		return f.api.listHits == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	levels := []NoticeLevel{}
	for _, n := range f.svc.Notices(0) {
		levels = append(levels, n.Level)
	}
	assert.Contains(t, levels, NoticeSuccess)
}

func TestJournalWarmsDedupAcrossSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RefreshChats(ctx))
	f.ch.emit(userMessage("c1", "session-one-long", "m4"))

	// A second console over the same journal ignores the replay.
	ch := &fakeChannel{}
	svc := New(config.Default(), Deps{API: f.api, Channel: ch, Journal: f.journal})
	require.NoError(t, svc.RefreshChats(ctx))
	ch.emit(userMessage("c1", "session-one-long", "m4"))

	assert.Equal(t, 3, svc.View().Chats[0].MessageCount)
}

func TestLifecycleAndErrorNotices(t *testing.T) {
	f := newFixture(t)

	f.ch.lifecycle(domain.LifecycleConnected)
	f.ch.emit(domain.SessionConnected{SessionID: "abcdefghijk"})
	f.ch.emit(domain.ChannelError{Message: "rate limited"})
	for _, fn := range f.ch.lifecycles {
		fn(domain.Lifecycle{State: domain.LifecycleError, Err: fmt.Errorf("boom")})
	}
	f.ch.lifecycle(domain.LifecycleDisconnected)

	msgs := []string{}
	for _, n := range f.svc.Notices(0) {
		msgs = append(msgs, n.Message)
	}
	assert.Equal(t, []string{
		"Connected to chat server",
		"New user connected: abcdefgh...",
		"rate limited",
		"Connection error: boom",
		"Disconnected from chat server",
	}, msgs)
	assert.True(t, f.svc.Store().IsOnline("abcdefghijk"))

	since := f.svc.Notices(0)[2].Seq
	assert.Len(t, f.svc.Notices(since), 2)
}

func TestRefreshFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.api.listErr = &adminapi.APIError{Status: http.StatusBadGateway}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	require.Eventually(t, f.svc.Connected, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, f.svc.View().Chats)
}
