package console

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/livedesk/internal/channel"
	"github.com/xiaot623/livedesk/internal/config"
	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/protocol"
	"github.com/xiaot623/livedesk/internal/testutil"
	"github.com/xiaot623/livedesk/pkg/logger"
)

func TestEndToEndOverWebSocket(t *testing.T) {
	srv := testutil.NewChatServer()
	defer srv.Close()
	srv.SetActiveSessions("s1")

	cfg := config.Default()
	cfg.Channel.URL = srv.URL()
	cfg.Operator = config.OperatorConfig{ID: "op-1", Token: "tok"}
	cfg.Reconnect.InitialIntervalMs = 10
	cfg.Reconnect.MaxIntervalMs = 50

	api := &fakeAPI{chats: []domain.Chat{{ID: "c1", SessionID: "s1", IsActive: true, MessageCount: 1}}}
	sup := channel.NewSupervisor(channel.OptionsFromConfig(cfg), channel.BackoffFromConfig(cfg), logger.NewNop())
	svc := New(cfg, Deps{API: api, Channel: sup})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		v := svc.View()
		return v.Connected && len(v.Online) == 1 && len(v.Chats) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.SendReply(ctx, "c1", "how can I help?"))
	require.Eventually(t, func() bool { return len(srv.Commands()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, protocol.TypeReplySend, srv.Commands()[0].Type)

	// The reply round-trips as an admin message, then the user answers twice
	// with the same id.
	require.NoError(t, srv.Push(protocol.ChatMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeMessageAdmin},
		Message:     domain.Message{ID: "m2", Content: "how can I help?", Sender: domain.SenderAdmin},
		SessionID:   "s1",
		ChatID:      "c1",
	}))
	for i := 0; i < 2; i++ {
		require.NoError(t, srv.Push(protocol.ChatMessage{
			BaseMessage: protocol.BaseMessage{Type: protocol.TypeMessageUser},
			Message:     domain.Message{ID: "m3", Content: "refund", Sender: domain.SenderUser},
			SessionID:   "s1",
			ChatID:      "c1",
		}))
	}

	require.Eventually(t, func() bool {
		chats := svc.View().Chats
		return len(chats) == 1 && chats[0].LastMessage != nil && chats[0].LastMessage.ID == "m3"
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, svc.View().Chats[0].MessageCount)

	// A drop is followed by a reconnect with a fresh snapshot.
	srv.SetActiveSessions("s1", "s2")
	srv.DropAll()
	require.Eventually(t, func() bool {
		v := svc.View()
		return v.Connected && len(v.Online) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, srv.Identifies(), 2)
}
