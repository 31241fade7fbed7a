package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/livedesk/internal/domain"
)

func userMessage(chatID, id string) domain.MessageReceived {
	return domain.MessageReceived{
		Kind:      domain.MessageKindUser,
		ChatID:    chatID,
		SessionID: "s1",
		Message:   domain.Message{ID: id, Content: "hi", Sender: domain.SenderUser},
	}
}

func TestListOnlyScenario(t *testing.T) {
	s := New(0)
	s.SetChats([]domain.Chat{{ID: "c1", MessageCount: 2}})

	out := s.Handle(userMessage("c1", "m9"))

	assert.True(t, out.ListUpdated)
	v := s.View()
	require.Len(t, v.Chats, 1)
	assert.Equal(t, 3, v.Chats[0].MessageCount)
	assert.Equal(t, "m9", v.Chats[0].LastMessage.ID)
	assert.Nil(t, v.Focused)
}

func TestFocusedScenario(t *testing.T) {
	s := New(0)
	s.SetChats([]domain.Chat{{ID: "c1", MessageCount: 2}})
	s.Focus(domain.ChatDetails{Chat: domain.Chat{ID: "c1", MessageCount: 2}, Messages: []domain.Message{}})

	out := s.Handle(domain.MessageReceived{
		Kind:    domain.MessageKindAI,
		ChatID:  "c1",
		Message: domain.Message{ID: "m10", Sender: domain.SenderAI, IsAI: true},
	})

	assert.True(t, out.ListUpdated)
	assert.True(t, out.TranscriptUpdated)
	v := s.View()
	require.NotNil(t, v.Focused)
	require.Len(t, v.Focused.Messages, 1)
	assert.Equal(t, "m10", v.Focused.Messages[0].ID)
	assert.Equal(t, 3, v.Chats[0].MessageCount)
}

func TestConnectDisconnectScenario(t *testing.T) {
	s := New(0)
	s.Handle(domain.PresenceSnapshot{ActiveSessionIDs: []string{"s0"}})
	before := s.View().Online

	s.Handle(domain.SessionConnected{SessionID: "s1"})
	s.Handle(domain.TypingChanged{SessionID: "s1", IsTyping: true})
	assert.True(t, s.IsTyping("s1"))
	s.Handle(domain.SessionDisconnected{SessionID: "s1"})

	assert.Equal(t, before, s.View().Online)
	assert.False(t, s.IsOnline("s1"))
	assert.False(t, s.IsTyping("s1"))
}

func TestSnapshotReplacesPresence(t *testing.T) {
	s := New(0)
	s.Handle(domain.SessionConnected{SessionID: "A"})
	s.Handle(domain.SessionConnected{SessionID: "B"})

	out := s.Handle(domain.PresenceSnapshot{ActiveSessionIDs: []string{"B", "C"}})

	assert.True(t, out.PresenceChanged)
	assert.Equal(t, []string{"B", "C"}, s.View().Online)
}

func TestChannelErrorLeavesStateAlone(t *testing.T) {
	s := New(0)
	s.SetChats([]domain.Chat{{ID: "c1", MessageCount: 1}})
	before := s.View()

	out := s.Handle(domain.ChannelError{Message: "rate limited"})

	assert.Equal(t, "rate limited", out.Notice)
	assert.False(t, out.Applied())
	assert.Equal(t, before, s.View())
}

func TestAIToggleAndClose(t *testing.T) {
	s := New(0)
	s.SetChats([]domain.Chat{{ID: "c1", IsActive: true}})
	s.Focus(domain.ChatDetails{Chat: domain.Chat{ID: "c1", IsActive: true}})

	s.Handle(domain.AIToggled{ChatID: "c1", Enabled: true})
	s.Handle(domain.ChatClosed{ChatID: "c1"})

	v := s.View()
	assert.True(t, v.Chats[0].IsAIEnabled)
	assert.True(t, v.Focused.IsAIEnabled)
	assert.False(t, v.Chats[0].IsActive)
	assert.False(t, v.Focused.IsActive)
}

// Readers never observe one projection updated without the other.
func TestConcurrentReadersSeeConsistentProjections(t *testing.T) {
	s := New(0)
	s.SetChats([]domain.Chat{{ID: "c1"}})
	s.Focus(domain.ChatDetails{Chat: domain.Chat{ID: "c1"}})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			v := s.View()
			if v.Focused != nil && len(v.Chats) == 1 {
				assert.Equal(t, v.Chats[0].MessageCount, len(v.Focused.Messages))
			}
		}
	}()

	for i := 0; i < 200; i++ {
		s.Handle(userMessage("c1", string(rune('a'+i%26))+string(rune('0'+i/26))))
	}
	close(stop)
	wg.Wait()

	v := s.View()
	assert.Equal(t, 200, v.Chats[0].MessageCount)
	assert.Len(t, v.Focused.Messages, 200)
}
