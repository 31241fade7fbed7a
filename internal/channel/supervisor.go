package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xiaot623/livedesk/internal/config"
	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/protocol"
	"github.com/xiaot623/livedesk/pkg/logger"
)

// BackoffOptions configures the delay between connection attempts.
type BackoffOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
}

// BackoffFromConfig builds backoff options from the console configuration.
func BackoffFromConfig(cfg *config.Config) BackoffOptions {
	return BackoffOptions{
		InitialInterval: config.Ms(cfg.Reconnect.InitialIntervalMs),
		MaxInterval:     config.Ms(cfg.Reconnect.MaxIntervalMs),
		Multiplier:      cfg.Reconnect.Multiplier,
		Jitter:          cfg.Reconnect.Jitter,
	}
}

func (o BackoffOptions) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if o.InitialInterval > 0 {
		b.InitialInterval = o.InitialInterval
	}
	if o.MaxInterval > 0 {
		b.MaxInterval = o.MaxInterval
	}
	if o.Multiplier >= 1 {
		b.Multiplier = o.Multiplier
	}
	if o.Jitter >= 0 && o.Jitter < 1 {
		b.RandomizationFactor = o.Jitter
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Supervisor keeps one Client connected at a time, reconnecting with
// exponential backoff after failures and drops.
type Supervisor struct {
	opts    Options
	backoff BackoffOptions
	log     *logger.Logger

	subMu       sync.Mutex
	events      []func(domain.Event)
	lifecycles  []func(domain.Lifecycle)
	onConnected func(ctx context.Context)

	mu      sync.RWMutex
	current *Client

	generations atomic.Int64
}

// NewSupervisor creates a supervisor. Register listeners before Run.
func NewSupervisor(opts Options, bo BackoffOptions, log *logger.Logger) *Supervisor {
	return &Supervisor{
		opts:    opts,
		backoff: bo,
		log:     log.Named("supervisor"),
	}
}

// Subscribe registers fn for inbound events of every generation.
func (s *Supervisor) Subscribe(fn func(domain.Event)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.events = append(s.events, fn)
}

// OnLifecycle registers fn for connection signals of every generation.
func (s *Supervisor) OnLifecycle(fn func(domain.Lifecycle)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.lifecycles = append(s.lifecycles, fn)
}

// OnConnected sets a hook run after each successful connect.
func (s *Supervisor) OnConnected(fn func(ctx context.Context)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onConnected = fn
}

// Generations returns the number of successful connects so far.
func (s *Supervisor) Generations() int64 {
	return s.generations.Load()
}

// Connected reports whether the current generation is open.
func (s *Supervisor) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.Connected()
}

// Send forwards cmd to the current generation.
func (s *Supervisor) Send(cmd protocol.Command) error {
	s.mu.RLock()
	client := s.current
	s.mu.RUnlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.Send(cmd)
}

// Run connects and reconnects until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	b := s.backoff.newBackOff()

	for {
		client := s.attach(New(s.opts, s.log))

		err := client.Connect(ctx)
		if err == nil {
			s.setCurrent(client)
			s.generations.Add(1)
			b.Reset()

			if hook := s.hook(); hook != nil {
				hook(ctx)
			}

			select {
			case <-client.Done():
			case <-ctx.Done():
			}
		} else {
			s.log.Warn("Connect attempt failed", logger.Error(err))
		}

		s.setCurrent(nil)
		client.Close()

		if ctx.Err() != nil {
			return nil
		}

		wait := b.NextBackOff()
		s.log.Info("Reconnecting", logger.Duration("backoff", wait))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func (s *Supervisor) attach(client *Client) *Client {
	s.subMu.Lock()
	events := append([]func(domain.Event){}, s.events...)
	lifecycles := append([]func(domain.Lifecycle){}, s.lifecycles...)
	s.subMu.Unlock()

	for _, fn := range events {
		client.Subscribe(fn)
	}
	for _, fn := range lifecycles {
		client.OnLifecycle(fn)
	}
	return client
}

func (s *Supervisor) hook() func(ctx context.Context) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.onConnected
}

func (s *Supervisor) setCurrent(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = client
}
