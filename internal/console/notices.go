package console

import (
	"sync"
	"time"
)

// NoticeLevel grades an operator notification.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is one operator notification.
type Notice struct {
	Seq     int64       `json:"seq"`
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Notices is a bounded ring of recent notifications.
type Notices struct {
	mu    sync.Mutex
	items []Notice
	next  int
	full  bool
	seq   int64
}

// NewNotices creates a ring holding up to capacity notices.
func NewNotices(capacity int) *Notices {
	if capacity <= 0 {
		capacity = 50
	}
	return &Notices{items: make([]Notice, capacity)}
}

// Add appends a notice, evicting the oldest when full.
func (n *Notices) Add(level NoticeLevel, message string) Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	notice := Notice{Seq: n.seq, Level: level, Message: message, At: time.Now()}
	n.items[n.next] = notice
	n.next = (n.next + 1) % len(n.items)
	if n.next == 0 {
		n.full = true
	}
	return notice
}

// List returns the retained notices, oldest first.
func (n *Notices) List() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.full {
		return append([]Notice{}, n.items[:n.next]...)
	}
	out := make([]Notice, 0, len(n.items))
	out = append(out, n.items[n.next:]...)
	return append(out, n.items[:n.next]...)
}

// Since returns notices with a sequence number greater than seq.
func (n *Notices) Since(seq int64) []Notice {
	all := n.List()
	for i, notice := range all {
		if notice.Seq > seq {
			return all[i:]
		}
	}
	return []Notice{}
}
