// Package projection maintains the conversation summary list and the focused
// transcript as two views over one message stream.
package projection

import (
	"github.com/xiaot623/livedesk/internal/domain"
)

// DefaultDedupWindow is the number of message ids remembered per chat.
const DefaultDedupWindow = 256

// Result describes what one transition changed.
type Result struct {
	ListUpdated       bool
	TranscriptUpdated bool
	Duplicate         bool
}

// Applied reports whether any projection changed.
func (r Result) Applied() bool {
	return r.ListUpdated || r.TranscriptUpdated
}

// Projector owns the summary list and the singleton focused transcript.
// It is not safe for concurrent use; callers serialize access.
type Projector struct {
	chats  []domain.Chat
	index  map[string]int
	focus  *domain.ChatDetails
	seen   map[string]*seenWindow
	window int

	// pending buffers messages for a chat whose transcript is being fetched.
	pending *pendingFocus
}

type pendingFocus struct {
	chatID string
	msgs   []domain.Message
}

// New returns an empty projector remembering window ids per chat.
func New(window int) *Projector {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Projector{
		index:  make(map[string]int),
		seen:   make(map[string]*seenWindow),
		window: window,
	}
}

// SetChats replaces the summary list with a freshly fetched one.
func (p *Projector) SetChats(chats []domain.Chat) {
	p.chats = make([]domain.Chat, len(chats))
	p.index = make(map[string]int, len(chats))
	for i, c := range chats {
		p.chats[i] = c.Clone()
		p.index[c.ID] = i
		if c.LastMessage != nil {
			p.markSeen(c.ID, c.LastMessage.ID)
		}
	}
	p.pruneSeen()
}

// BeginFocus starts buffering messages for chatID until its transcript is
// installed by Focus or the fetch is abandoned with CancelFocus.
func (p *Projector) BeginFocus(chatID string) {
	p.pending = &pendingFocus{chatID: chatID}
}

// CancelFocus stops buffering for chatID.
func (p *Projector) CancelFocus(chatID string) {
	if p.pending != nil && p.pending.chatID == chatID {
		p.pending = nil
	}
}

// Focus materializes the transcript of one chat, replacing any previous focus.
// Messages buffered since BeginFocus that the fetched page lacks are appended.
// Focusing the chat that is already focused merges instead; see RefreshFocus.
func (p *Projector) Focus(details domain.ChatDetails) {
	if p.focus != nil && p.focus.ID == details.ID {
		p.RefreshFocus(details)
		return
	}

	buffered := p.takePending(details.ID)
	d := details.Clone()
	if d.Messages == nil {
		d.Messages = []domain.Message{}
	}
	p.focus = &d
	for _, m := range d.Messages {
		p.markSeen(d.ID, m.ID)
	}
	if d.LastMessage != nil {
		p.markSeen(d.ID, d.LastMessage.ID)
	}

	present := messageIDs(d.Messages)
	for _, m := range buffered {
		if _, ok := present[m.ID]; ok {
			continue
		}
		present[m.ID] = struct{}{}
		bump(&p.focus.Chat, m)
		p.focus.Messages = append(p.focus.Messages, m)
		p.focus.Pagination.Total++
		p.markSeen(d.ID, m.ID)
	}
	p.pruneSeen()
}

// RefreshFocus re-seeds the focused chat from a fresh newest page without
// dropping messages already in the transcript. Fetched messages that are not
// present are appended; chat fields come from the fetch. Older pages loaded
// earlier stay, and so does the paging position.
func (p *Projector) RefreshFocus(details domain.ChatDetails) {
	if p.focus == nil || p.focus.ID != details.ID {
		p.Focus(details)
		return
	}
	p.takePending(details.ID)

	cur := p.focus
	chat := details.Chat.Clone()
	if cur.MessageCount > chat.MessageCount {
		chat.MessageCount = cur.MessageCount
	}
	if chat.LastMessage == nil && cur.LastMessage != nil {
		m := *cur.LastMessage
		chat.LastMessage = &m
	}

	msgs := cur.Messages
	present := messageIDs(msgs)
	for _, m := range details.Messages {
		if _, ok := present[m.ID]; !ok {
			present[m.ID] = struct{}{}
			msgs = append(msgs, m)
		}
		p.markSeen(chat.ID, m.ID)
	}
	if chat.LastMessage != nil {
		p.markSeen(chat.ID, chat.LastMessage.ID)
	}

	pagination := cur.Pagination
	if details.Pagination.Total > pagination.Total {
		pagination.Total = details.Pagination.Total
	}
	if len(msgs) > pagination.Total {
		pagination.Total = len(msgs)
	}
	p.focus = &domain.ChatDetails{Chat: chat, Messages: msgs, Pagination: pagination}
	p.pruneSeen()
}

func (p *Projector) takePending(chatID string) []domain.Message {
	if p.pending == nil || p.pending.chatID != chatID {
		return nil
	}
	msgs := p.pending.msgs
	p.pending = nil
	return msgs
}

func messageIDs(msgs []domain.Message) map[string]struct{} {
	ids := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		ids[m.ID] = struct{}{}
	}
	return ids
}

// ClearFocus drops the focused transcript.
func (p *Projector) ClearFocus() {
	p.focus = nil
	p.pruneSeen()
}

// FocusedID returns the focused chat id, or "" when nothing is focused.
func (p *Projector) FocusedID() string {
	if p.focus == nil {
		return ""
	}
	return p.focus.ID
}

// PrependOlder merges an older transcript page in front of the focused one.
// It returns false when chatID is no longer focused.
func (p *Projector) PrependOlder(chatID string, page domain.ChatDetails) bool {
	if p.focus == nil || p.focus.ID != chatID {
		return false
	}

	present := messageIDs(p.focus.Messages)
	older := make([]domain.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if _, ok := present[m.ID]; ok {
			continue
		}
		present[m.ID] = struct{}{}
		older = append(older, m)
		p.markSeen(chatID, m.ID)
	}

	p.focus.Messages = append(older, p.focus.Messages...)
	total := p.focus.Pagination.Total
	p.focus.Pagination = page.Pagination
	if total > p.focus.Pagination.Total {
		p.focus.Pagination.Total = total
	}
	return true
}

// ApplyMessage applies one message event to both projections in a single step.
// Duplicates (by message id, within the per-chat window) change nothing.
func (p *Projector) ApplyMessage(ev domain.MessageReceived) Result {
	if w, ok := p.seen[ev.ChatID]; ok && w.has(ev.Message.ID) {
		return Result{Duplicate: true}
	}

	idx, inList := p.index[ev.ChatID]
	inFocus := p.focus != nil && p.focus.ID == ev.ChatID
	if !inFocus && p.pending != nil && p.pending.chatID == ev.ChatID {
		p.bufferPending(ev.Message)
	}
	if !inList && !inFocus {
		return Result{}
	}

	msg := ev.Message
	var res Result
	if inList {
		bump(&p.chats[idx], msg)
		res.ListUpdated = true
	}
	if inFocus {
		bump(&p.focus.Chat, msg)
		p.focus.Messages = append(p.focus.Messages, msg)
		p.focus.Pagination.Total++
		res.TranscriptUpdated = true
	}
	p.markSeen(ev.ChatID, msg.ID)
	return res
}

func (p *Projector) bufferPending(msg domain.Message) {
	for _, m := range p.pending.msgs {
		if m.ID == msg.ID {
			return
		}
	}
	if len(p.pending.msgs) >= p.window {
		p.pending.msgs = p.pending.msgs[1:]
	}
	p.pending.msgs = append(p.pending.msgs, msg)
}

func bump(c *domain.Chat, msg domain.Message) {
	m := msg
	c.LastMessage = &m
	c.MessageCount++
	if !msg.Timestamp.IsZero() {
		c.UpdatedAt = msg.Timestamp
	}
}

// ApplyAIToggle sets IsAIEnabled on the list entry and the focus when they match.
func (p *Projector) ApplyAIToggle(chatID string, enabled bool) Result {
	return p.updateChat(chatID, func(c *domain.Chat) { c.IsAIEnabled = enabled })
}

// ApplyChatClosed marks the chat inactive in both projections.
func (p *Projector) ApplyChatClosed(chatID string) Result {
	return p.updateChat(chatID, func(c *domain.Chat) { c.IsActive = false })
}

func (p *Projector) updateChat(chatID string, fn func(*domain.Chat)) Result {
	var res Result
	if idx, ok := p.index[chatID]; ok {
		fn(&p.chats[idx])
		res.ListUpdated = true
	}
	if p.focus != nil && p.focus.ID == chatID {
		fn(&p.focus.Chat)
		res.TranscriptUpdated = true
	}
	return res
}

// SeedSeen records ids already reflected in the seeded state for a known chat.
func (p *Projector) SeedSeen(chatID string, ids []string) {
	if !p.tracked(chatID) {
		return
	}
	for _, id := range ids {
		p.markSeen(chatID, id)
	}
}

// Chats returns a copy of the summary list.
func (p *Projector) Chats() []domain.Chat {
	out := make([]domain.Chat, len(p.chats))
	for i, c := range p.chats {
		out[i] = c.Clone()
	}
	return out
}

// Chat looks a chat up in the list, falling back to the focus.
func (p *Projector) Chat(chatID string) (domain.Chat, bool) {
	if idx, ok := p.index[chatID]; ok {
		return p.chats[idx].Clone(), true
	}
	if p.focus != nil && p.focus.ID == chatID {
		return p.focus.Chat.Clone(), true
	}
	return domain.Chat{}, false
}

// Focused returns a copy of the focused transcript.
func (p *Projector) Focused() (domain.ChatDetails, bool) {
	if p.focus == nil {
		return domain.ChatDetails{}, false
	}
	return p.focus.Clone(), true
}

func (p *Projector) tracked(chatID string) bool {
	if _, ok := p.index[chatID]; ok {
		return true
	}
	return p.focus != nil && p.focus.ID == chatID
}

func (p *Projector) markSeen(chatID, msgID string) {
	if msgID == "" {
		return
	}
	w, ok := p.seen[chatID]
	if !ok {
		w = newSeenWindow(p.window)
		p.seen[chatID] = w
	}
	w.add(msgID)
}

// pruneSeen forgets windows of chats that are neither listed nor focused.
func (p *Projector) pruneSeen() {
	for id := range p.seen {
		if !p.tracked(id) {
			delete(p.seen, id)
		}
	}
}
