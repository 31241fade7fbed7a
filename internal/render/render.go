// Package render draws the console state for terminals.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/livedesk/internal/console"
	"github.com/xiaot623/livedesk/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	typingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	senderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("135"))
)

// Options tune the output.
type Options struct {
	// Tail is the number of transcript messages shown for the focused chat.
	Tail int
	// Preview caps the last-message preview in the chat list, in runes.
	Preview int
	Now     time.Time
}

func (o Options) withDefaults() Options {
	if o.Tail <= 0 {
		o.Tail = 10
	}
	if o.Preview <= 0 {
		o.Preview = 40
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// Snapshot writes connection status, presence, the chat list and the focused
// transcript tail.
func Snapshot(w io.Writer, snap console.Snapshot, opts Options) {
	opts = opts.withDefaults()

	status := offlineStyle.Render("○ disconnected")
	if snap.Connected {
		status = onlineStyle.Render("● connected")
	}
	fmt.Fprintln(w, headerStyle.Render("LiveDesk")+" "+status)
	fmt.Fprintln(w)

	writePresence(w, snap.Online, snap.Typing)
	fmt.Fprintln(w)
	writeChats(w, snap.Chats, snap.Focused, opts)

	if snap.Focused != nil {
		fmt.Fprintln(w)
		writeTranscript(w, *snap.Focused, opts)
	}
}

// Notices writes operator notifications, oldest first.
func Notices(w io.Writer, notices []console.Notice) {
	if len(notices) == 0 {
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Notices"))
	for _, n := range notices {
		fmt.Fprintf(w, "  %s %s %s\n",
			dateStyle.Render(n.At.Format("15:04:05")),
			levelStyle(n.Level).Render(strings.ToUpper(string(n.Level))),
			n.Message)
	}
}

func writePresence(w io.Writer, online, typing []string) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Online (%d)", len(online))))
	if len(online) == 0 {
		fmt.Fprintln(w, "  "+dateStyle.Render("nobody online"))
		return
	}

	isTyping := make(map[string]bool, len(typing))
	for _, id := range typing {
		isTyping[id] = true
	}
	for _, id := range online {
		line := "  " + onlineStyle.Render("●") + " " + id
		if isTyping[id] {
			line += " " + typingStyle.Render("typing…")
		}
		fmt.Fprintln(w, line)
	}
}

func writeChats(w io.Writer, chats []domain.Chat, focused *domain.ChatDetails, opts Options) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Chats (%d)", len(chats))))
	if len(chats) == 0 {
		fmt.Fprintln(w, "  "+dateStyle.Render("no chats"))
		return
	}

	focusedID := ""
	if focused != nil {
		focusedID = focused.ID
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  \tID\tSession\tStatus\tAI\tMessages\tUpdated\tLast")
	for _, c := range chats {
		marker := " "
		if c.ID == focusedID {
			marker = ">"
		}
		status := "closed"
		if c.IsActive {
			status = "active"
		}
		ai := "off"
		if c.IsAIEnabled {
			ai = "on"
		}
		last := ""
		if c.LastMessage != nil {
			last = truncate(c.LastMessage.Content, opts.Preview)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			marker,
			idStyle.Render(short(c.ID)),
			short(c.SessionID),
			status,
			ai,
			countStyle.Render(strconv.Itoa(c.MessageCount)),
			dateStyle.Render(formatTime(c.UpdatedAt, opts.Now)),
			last)
	}
	tw.Flush()
}

func writeTranscript(w io.Writer, d domain.ChatDetails, opts Options) {
	header := fmt.Sprintf("Chat %s (%d of %d messages)", short(d.ID), len(d.Messages), d.Pagination.Total)
	fmt.Fprintln(w, titleStyle.Render(header))
	if d.Pagination.HasMore {
		fmt.Fprintln(w, "  "+dateStyle.Render("older messages available"))
	}

	msgs := d.Messages
	if len(msgs) > opts.Tail {
		msgs = msgs[len(msgs)-opts.Tail:]
	}
	for _, m := range msgs {
		sender := strings.ToLower(string(m.Sender))
		if m.IsAI {
			sender += " (ai)"
		}
		fmt.Fprintf(w, "  %s %s: %s\n",
			dateStyle.Render(m.Timestamp.Format("15:04:05")),
			senderStyle.Render(sender),
			m.Content)
	}
}

func levelStyle(level console.NoticeLevel) lipgloss.Style {
	switch level {
	case console.NoticeSuccess:
		return onlineStyle
	case console.NoticeWarning:
		return typingStyle
	case console.NoticeError:
		return offlineStyle
	default:
		return idStyle
	}
}

// formatTime follows the relative style of session listings.
func formatTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
