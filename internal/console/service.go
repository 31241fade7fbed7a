// Package console wires the event channel, state store, command path and
// upstream REST API into one operator session.
package console

import (
	"context"
	"errors"

	"github.com/xiaot623/livedesk/internal/adapter/adminapi"
	"github.com/xiaot623/livedesk/internal/config"
	"github.com/xiaot623/livedesk/internal/dispatch"
	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/policy"
	"github.com/xiaot623/livedesk/internal/repository"
	"github.com/xiaot623/livedesk/internal/state"
	"github.com/xiaot623/livedesk/pkg/logger"
)

var (
	// ErrCommandBlocked is returned when the command policy refuses a command.
	ErrCommandBlocked = errors.New("command blocked by policy")
	// ErrUnknownChat is returned for chats the console does not know about.
	ErrUnknownChat = errors.New("unknown chat")
	// ErrNoFocus is returned by LoadOlder when no chat is focused.
	ErrNoFocus = errors.New("no chat focused")
)

const (
	chatListLimit  = 100
	noticeCapacity = 50
)

// AdminAPI is the upstream REST boundary.
type AdminAPI interface {
	ListChats(ctx context.Context, params adminapi.ListChatsParams) (*adminapi.ChatList, error)
	GetChatDetails(ctx context.Context, chatID string, page, limit int) (*domain.ChatDetails, error)
	CloseChat(ctx context.Context, chatID string) error
	GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error)
}

// Channel is a self-reconnecting event channel.
type Channel interface {
	dispatch.Sender
	Subscribe(fn func(domain.Event))
	OnLifecycle(fn func(domain.Lifecycle))
	OnConnected(fn func(ctx context.Context))
	Run(ctx context.Context) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	API     AdminAPI
	Channel Channel
	Policy  *policy.Engine
	Journal repository.Journal
	Logger  *logger.Logger
}

// Service is one operator session.
type Service struct {
	cfg        *config.Config
	store      *state.Store
	api        AdminAPI
	channel    Channel
	dispatcher *dispatch.Dispatcher
	policy     *policy.Engine
	journal    repository.Journal
	notices    *Notices
	log        *logger.Logger
}

// New wires a service and subscribes it to the channel.
func New(cfg *config.Config, deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("console")

	s := &Service{
		cfg:        cfg,
		store:      state.New(cfg.Projection.DedupWindow),
		api:        deps.API,
		channel:    deps.Channel,
		dispatcher: dispatch.New(deps.Channel, log),
		policy:     deps.Policy,
		journal:    deps.Journal,
		notices:    NewNotices(noticeCapacity),
		log:        log,
	}

	deps.Channel.Subscribe(s.handleEvent)
	deps.Channel.OnLifecycle(s.handleLifecycle)
	deps.Channel.OnConnected(s.resync)
	return s
}

// Run seeds the conversation list and keeps the channel connected until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if err := s.RefreshChats(ctx); err != nil {
		s.log.Warn("Initial chat list fetch failed", logger.Error(err))
		s.notices.Add(NoticeError, "Failed to load chats: "+err.Error())
	}
	return s.channel.Run(ctx)
}

// Connected reports whether the event channel is open.
func (s *Service) Connected() bool {
	return s.channel.Connected()
}

// Snapshot is the console state as served to view layers.
type Snapshot struct {
	Connected bool `json:"connected"`
	state.View
}

// View returns a consistent snapshot of the console state.
func (s *Service) View() Snapshot {
	return Snapshot{Connected: s.Connected(), View: s.store.View()}
}

// Store exposes the state store to read-only consumers.
func (s *Service) Store() *state.Store {
	return s.store
}

// Notices returns recent operator notifications, oldest first.
func (s *Service) Notices(since int64) []Notice {
	if since > 0 {
		return s.notices.Since(since)
	}
	return s.notices.List()
}

// Activity returns recently journaled events, newest first.
func (s *Service) Activity(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	if s.journal == nil {
		return []domain.ActivityEntry{}, nil
	}
	return s.journal.RecentEvents(ctx, limit)
}

// Stats returns upstream dashboard totals.
func (s *Service) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	return s.api.GetDashboardStats(ctx)
}
