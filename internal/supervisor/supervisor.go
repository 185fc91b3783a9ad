// Package supervisor owns the connection lifecycle: it connects, authenticates,
// hands inbound messages to the engine and restarts the session after link
// loss until the restart budget is spent.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"auto_responder/internal/config"
	"auto_responder/internal/model"
	"auto_responder/internal/stats"
)

// Transport is the messaging network session the supervisor drives.
type Transport interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	IsAuthorized(ctx context.Context) (bool, error)
	SendCode(ctx context.Context, phone string) error
	// SignIn returns model.ErrPasswordNeeded when a 2FA password is required.
	SignIn(ctx context.Context, phone, code string) error
	SignInPassword(ctx context.Context, password string) error
	Self(ctx context.Context) (model.Identity, error)
	OnMessage(h func(ctx context.Context, ev model.Event))
	RunUntilDisconnected(ctx context.Context) error
	Disconnect() error
}

// Handler processes one inbound event on behalf of the signed-in account.
type Handler interface {
	Handle(ctx context.Context, ev model.Event, self *model.Identity) model.Outcome
}

// Supervisor runs the connection state machine.
type Supervisor struct {
	transport Transport
	handler   Handler
	stats     *stats.Stats
	log       *slog.Logger

	phone        string
	code         string
	password     string
	restartDelay time.Duration
	maxAttempts  int

	mu           sync.Mutex
	state        model.State
	self         *model.Identity
	restarts     int
	terminal     bool
	cancel       context.CancelFunc
	onTransition func(from, to model.State)

	now func() time.Time
}

// New creates a Supervisor in the Idle state.
func New(transport Transport, handler Handler, cfg *config.Config, st *stats.Stats, log *slog.Logger) *Supervisor {
	return &Supervisor{
		transport:    transport,
		handler:      handler,
		stats:        st,
		log:          log,
		phone:        cfg.PhoneNumber,
		code:         cfg.LoginCode,
		password:     cfg.LoginPassword,
		restartDelay: cfg.RestartDelay,
		maxAttempts:  cfg.MaxRestartAttempts,
		state:        model.StateIdle,
		now:          time.Now,
	}
}

// OnTransition registers fn to be called on every state change.
func (s *Supervisor) OnTransition(fn func(from, to model.State)) {
	s.mu.Lock()
	s.onTransition = fn
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Supervisor) State() model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Restarts returns the current restart count.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Identity returns a copy of the signed-in identity, or nil when not connected.
func (s *Supervisor) Identity() *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == nil {
		return nil
	}
	me := *s.self
	return &me
}

// Run drives connection attempts until ctx is cancelled, Shutdown is called,
// or the restart budget is exhausted. Cancellation returns nil;
// exhaustion returns model.ErrExhaustedRestarts.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return model.ErrExhaustedRestarts
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for {
		log := s.log.With("attempt_id", uuid.NewString())
		log.Info("starting bot", "attempt", s.Restarts()+1, "max_attempts", s.maxAttempts)

		err := s.attempt(ctx, log)
		s.release()

		if ctx.Err() != nil {
			s.stop(log)
			return nil
		}
		if err != nil {
			log.Error("connection attempt ended", "error", err)
		}

		if restarts := s.incRestarts(); restarts >= s.maxAttempts {
			s.exhaust()
			log.Error("exceeded maximum restart attempts", "max_attempts", s.maxAttempts)
			return model.ErrExhaustedRestarts
		}

		delay := s.restartDelay
		if wait, ok := model.RetryAfter(err); ok && wait > delay {
			delay = wait
		}
		log.Info("waiting before restart", "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			s.stop(log)
			return nil
		}
	}
}

// attempt runs one connection from Initializing until the link drops or fails.
func (s *Supervisor) attempt(ctx context.Context, log *slog.Logger) error {
	s.setState(model.StateInitializing)

	if err := s.transport.Connect(ctx); err != nil {
		s.setState(model.StateDisconnected)
		return fmt.Errorf("connect: %w", err)
	}

	authorized, err := s.transport.IsAuthorized(ctx)
	if err != nil {
		s.setState(model.StateDisconnected)
		return fmt.Errorf("check authorization: %w", err)
	}
	if authorized {
		log.Info("already authorized")
	} else {
		s.setState(model.StateAuthenticating)
		if err := s.authenticate(ctx, log); err != nil {
			s.setState(model.StateFailed)
			return err
		}
	}

	me, err := s.transport.Self(ctx)
	if err != nil {
		s.setState(model.StateFailed)
		return fmt.Errorf("get self: %w", err)
	}
	s.connected(me)
	log.Info("logged in", "user_id", me.ID, "name", me.FirstName, "username", me.Username)

	s.transport.OnMessage(s.dispatch)
	err = s.transport.RunUntilDisconnected(ctx)

	s.setState(model.StateDisconnected)
	log.Warn("client disconnected", "error", err)
	return err
}

func (s *Supervisor) authenticate(ctx context.Context, log *slog.Logger) error {
	log.Info("sending code request")
	if err := s.transport.SendCode(ctx, s.phone); err != nil {
		return &model.AuthenticationError{Reason: "send code", Err: err}
	}
	if s.code == "" {
		log.Error("TELEGRAM_CODE is not set; put the login code into the environment and restart")
		return &model.AuthenticationError{Reason: "missing login code"}
	}

	err := s.transport.SignIn(ctx, s.phone, s.code)
	if errors.Is(err, model.ErrPasswordNeeded) {
		if s.password == "" {
			log.Error("TELEGRAM_PASSWORD is not set but the account requires a two-factor password")
			return &model.AuthenticationError{Reason: "missing two-factor password"}
		}
		err = s.transport.SignInPassword(ctx, s.password)
	}
	if err != nil {
		return &model.AuthenticationError{Reason: "sign in rejected", Err: err}
	}
	return nil
}

func (s *Supervisor) dispatch(ctx context.Context, ev model.Event) {
	out := s.handler.Handle(ctx, ev, s.Identity())
	switch out.Kind {
	case model.OutcomeFailed:
		s.log.Error("handle message", "chat_id", ev.ChatID, "user_id", ev.SenderID, "error", out.Err)
	case model.OutcomeIgnored:
		s.log.Debug("message ignored", "chat_id", ev.ChatID, "user_id", ev.SenderID, "reason", out.Reason)
	}
}

// HealthCheck reports whether the session is connected, still authorized and
// able to fetch its own identity. Failures are logged, never returned.
func (s *Supervisor) HealthCheck(ctx context.Context) bool {
	if s.State() != model.StateConnected {
		return false
	}

	ok, err := s.transport.IsAuthorized(ctx)
	if err != nil {
		s.log.Error("health check failed", "error", err)
		return false
	}
	if !ok {
		s.log.Warn("health check: not authorized")
		return false
	}
	if _, err := s.transport.Self(ctx); err != nil {
		s.log.Warn("health check: cannot get user info", "error", err)
		return false
	}

	s.stats.MarkHealthy(s.now())
	return true
}

// Stats returns the current run statistics.
func (s *Supervisor) Stats() stats.Snapshot {
	return s.stats.Snapshot()
}

// SafeDisconnect releases the transport and clears the identity. It is
// idempotent and safe to call even if the supervisor never connected.
func (s *Supervisor) SafeDisconnect() {
	s.release()
	s.mu.Lock()
	terminal := s.terminal
	s.mu.Unlock()
	if !terminal {
		s.setState(model.StateIdle)
	}
}

// Shutdown stops Run and disconnects. It may be called from any goroutine.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.SafeDisconnect()
}

func (s *Supervisor) release() {
	if s.transport.IsConnected() {
		if err := s.transport.Disconnect(); err != nil {
			s.log.Warn("disconnect", "error", err)
		}
	}
	s.mu.Lock()
	s.self = nil
	s.mu.Unlock()
	s.stats.SetRunning(false)
}

func (s *Supervisor) stop(log *slog.Logger) {
	s.SafeDisconnect()
	log.Info("bot shutdown complete")
}

func (s *Supervisor) connected(me model.Identity) {
	s.mu.Lock()
	s.self = &me
	s.restarts = 0
	s.mu.Unlock()
	s.stats.SetRestarts(0)
	s.stats.SetRunning(true)
	s.setState(model.StateConnected)
}

func (s *Supervisor) incRestarts() int {
	s.mu.Lock()
	s.restarts++
	n := s.restarts
	s.mu.Unlock()
	s.stats.SetRestarts(n)
	return n
}

func (s *Supervisor) exhaust() {
	s.mu.Lock()
	s.terminal = true
	s.mu.Unlock()
	s.setState(model.StateFailed)
}

func (s *Supervisor) setState(to model.State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	fn := s.onTransition
	s.mu.Unlock()

	if from == to {
		return
	}
	s.log.Debug("state transition", "from", from, "to", to)
	if fn != nil {
		fn(from, to)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
