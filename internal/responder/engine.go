// Package responder decides whether an inbound message deserves an automatic
// reply and sends it.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"auto_responder/internal/access"
	"auto_responder/internal/config"
	"auto_responder/internal/cooldown"
	"auto_responder/internal/model"
	"auto_responder/internal/stats"
)

// DefaultComposingDelay is how long the typing indicator is shown before a reply.
const DefaultComposingDelay = time.Second

var errNoIdentity = errors.New("identity unavailable")

// Replier sends the typing indicator and the reply itself.
type Replier interface {
	Typing(ctx context.Context, chatID int64) error
	Reply(ctx context.Context, ev model.Event, text string) error
}

// Engine classifies inbound events and dispatches templated replies.
// Handle runs synchronously per event; it has no internal queue.
type Engine struct {
	replier   Replier
	rules     *access.Rules
	cooldowns *cooldown.Tracker
	stats     *stats.Stats
	template  string
	triggers  model.TriggerSet
	log       *slog.Logger

	composingDelay time.Duration
	now            func() time.Time
}

// New creates an Engine from configuration.
func New(replier Replier, cfg *config.Config, st *stats.Stats, log *slog.Logger) *Engine {
	return &Engine{
		replier:        replier,
		rules:          access.New(cfg.Whitelist, cfg.Blacklist, cfg.AllowedChats),
		cooldowns:      cooldown.NewTracker(cfg.ChatCooldown, cfg.UserCooldown),
		stats:          st,
		template:       cfg.ResponseTemplate,
		triggers:       cfg.RespondTo,
		log:            log,
		composingDelay: DefaultComposingDelay,
		now:            time.Now,
	}
}

// SetComposingDelay overrides the default typing delay.
func (e *Engine) SetComposingDelay(d time.Duration) {
	e.composingDelay = d
}

// Handle processes one event on behalf of self and reports what happened.
// It never panics and never returns an error; failures are carried in the Outcome.
func (e *Engine) Handle(ctx context.Context, ev model.Event, self *model.Identity) (out model.Outcome) {
	e.stats.IncProcessed()

	defer func() {
		if r := recover(); r != nil {
			out = failed(ev, "", fmt.Errorf("panic: %v", r))
		}
	}()

	if self == nil {
		return failed(ev, "", errNoIdentity)
	}
	if ev.SenderID == self.ID {
		return model.Outcome{Kind: model.OutcomeIgnored, Reason: "own message"}
	}
	if ok, reason := e.rules.Permit(ev.SenderID, ev.ChatID); !ok {
		return model.Outcome{Kind: model.OutcomeIgnored, Reason: reason}
	}

	trigger, ok := Classify(ev, *self, e.triggers)
	if !ok {
		return model.Outcome{Kind: model.OutcomeIgnored, Reason: "no trigger"}
	}

	if !e.cooldowns.Reserve(ev.ChatID, ev.SenderID, e.now()) {
		chats, users := e.cooldowns.Len()
		e.log.Info("cooldown active", "chat_id", ev.ChatID, "user_id", ev.SenderID,
			"tracked_chats", chats, "tracked_users", users)
		return model.Outcome{Kind: model.OutcomeSuppressed, Trigger: trigger, Reason: "cooldown"}
	}

	username := ev.DisplayName()
	text := FormatResponse(e.template, username)

	if err := e.replier.Typing(ctx, ev.ChatID); err != nil {
		e.log.Warn("send typing", "chat_id", ev.ChatID, "error", err)
	}
	if err := sleep(ctx, e.composingDelay); err != nil {
		return failed(ev, trigger, err)
	}

	if err := e.send(ctx, ev, text); err != nil {
		return failed(ev, trigger, err)
	}

	e.stats.IncResponded()
	e.log.Info("responded", "username", username, "trigger", trigger, "chat_id", ev.ChatID)
	return model.Outcome{Kind: model.OutcomeResponded, Trigger: trigger}
}

// send delivers the reply, waiting out one server-imposed rate limit.
func (e *Engine) send(ctx context.Context, ev model.Event, text string) error {
	err := e.replier.Reply(ctx, ev, text)
	wait, limited := model.RetryAfter(err)
	if !limited {
		return err
	}

	e.log.Warn("reply rate limited", "chat_id", ev.ChatID, "retry_after", wait)
	if err := sleep(ctx, wait); err != nil {
		return err
	}
	return e.replier.Reply(ctx, ev, text)
}

func failed(ev model.Event, trigger model.Trigger, err error) model.Outcome {
	return model.Outcome{
		Kind:    model.OutcomeFailed,
		Trigger: trigger,
		Reason:  err.Error(),
		Err:     &model.HandlerError{ChatID: ev.ChatID, Err: err},
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
