// Package telegram adapts the Telegram Bot API to the supervisor's transport
// and the engine's replier.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"auto_responder/internal/model"
	"auto_responder/internal/session"
)

// DefaultPollTimeout is the long-poll timeout in seconds for getUpdates.
const DefaultPollTimeout = 50

// ErrCodeLoginUnsupported is returned by the interactive sign-in calls; a bot
// token is either accepted by getMe or it is not.
var ErrCodeLoginUnsupported = errors.New("login codes are not supported for bot tokens")

// HTTPDoer is the HTTP client used for Bot API requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configure a Client.
type Options struct {
	Token       string
	Endpoint    string // Bot API endpoint format, tgbotapi.APIEndpoint when empty
	SessionName string
	Store       session.Store
	HTTPClient  HTTPDoer
	PollTimeout int
	Log         *slog.Logger
}

// Client is a Bot API session. Connect must succeed before any other call.
type Client struct {
	token       string
	endpoint    string
	sessionName string
	store       session.Store
	http        HTTPDoer
	pollTimeout int
	log         *slog.Logger

	mu        sync.Mutex
	bot       *tgbotapi.BotAPI
	connected bool
	offset    int
	handler   func(ctx context.Context, ev model.Event)
	cancel    context.CancelFunc
}

// New creates a disconnected Client.
func New(opts Options) *Client {
	c := &Client{
		token:       opts.Token,
		endpoint:    opts.Endpoint,
		sessionName: opts.SessionName,
		store:       opts.Store,
		http:        opts.HTTPClient,
		pollTimeout: opts.PollTimeout,
		log:         opts.Log,
	}
	if c.endpoint == "" {
		c.endpoint = tgbotapi.APIEndpoint
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = DefaultPollTimeout
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// ctxDoer binds every request to the connection context so Disconnect and
// cancellation abort in-flight long polls.
type ctxDoer struct {
	ctx  context.Context
	next HTTPDoer
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.next.Do(req.WithContext(d.ctx))
}

// Connect opens the session and restores the stored update offset. A token
// rejected with 401 leaves the client connected but unauthorized.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	offset := 0
	if c.store != nil {
		sess, err := c.store.Load(ctx, c.sessionName)
		switch {
		case err == nil:
			offset = sess.UpdateOffset
			c.log.Info("session restored", "session", c.sessionName, "offset", offset, "user_id", sess.Identity.ID)
		case errors.Is(err, session.ErrNotFound):
			c.log.Info("new session", "session", c.sessionName)
		default:
			return fmt.Errorf("load session: %w", err)
		}
	}

	connCtx, cancel := context.WithCancel(ctx)
	bot, err := tgbotapi.NewBotAPIWithClient(c.token, c.endpoint, ctxDoer{ctx: connCtx, next: c.http})
	if err != nil && !isUnauthorized(err) {
		cancel()
		return classify("connect", err)
	}

	c.bot = bot
	c.connected = true
	c.offset = offset
	c.cancel = cancel
	return nil
}

// IsConnected reports whether Connect succeeded and Disconnect was not called.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// IsAuthorized reports whether the token is currently accepted by getMe.
func (c *Client) IsAuthorized(context.Context) (bool, error) {
	c.mu.Lock()
	connected, bot := c.connected, c.bot
	c.mu.Unlock()

	if !connected {
		return false, model.ErrNotConnected
	}
	if bot == nil {
		return false, nil
	}
	if _, err := bot.GetMe(); err != nil {
		if isUnauthorized(err) {
			return false, nil
		}
		return false, classify("get me", err)
	}
	return true, nil
}

// SendCode always fails: bots sign in with their token only.
func (c *Client) SendCode(context.Context, string) error {
	return ErrCodeLoginUnsupported
}

// SignIn always fails, see SendCode.
func (c *Client) SignIn(context.Context, string, string) error {
	return ErrCodeLoginUnsupported
}

// SignInPassword always fails, see SendCode.
func (c *Client) SignInPassword(context.Context, string) error {
	return ErrCodeLoginUnsupported
}

// Self returns the bot's own identity and records it in the session store.
func (c *Client) Self(ctx context.Context) (model.Identity, error) {
	bot, err := c.current()
	if err != nil {
		return model.Identity{}, err
	}

	me, err := bot.GetMe()
	if err != nil {
		return model.Identity{}, classify("get me", err)
	}
	id := model.Identity{ID: me.ID, FirstName: me.FirstName, Username: me.UserName}

	if c.store != nil {
		if err := c.store.SaveIdentity(ctx, c.sessionName, id); err != nil {
			c.log.Warn("save identity", "error", err)
		}
	}
	return id, nil
}

// OnMessage registers the handler for inbound messages. Events are delivered
// one at a time from RunUntilDisconnected.
func (c *Client) OnMessage(h func(ctx context.Context, ev model.Event)) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// RunUntilDisconnected long-polls for updates and dispatches messages until
// ctx is cancelled, Disconnect is called or a poll fails.
func (c *Client) RunUntilDisconnected(ctx context.Context) error {
	c.mu.Lock()
	bot, cancel, offset, h := c.bot, c.cancel, c.offset, c.handler
	c.mu.Unlock()

	if bot == nil {
		return model.ErrNotConnected
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = c.pollTimeout
		u.AllowedUpdates = []string{"message"}

		updates, err := bot.GetUpdates(u)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !c.IsConnected() {
				return model.ErrNotConnected
			}
			return classify("get updates", err)
		}

		for _, upd := range updates {
			if ev, ok := toEvent(upd.Message); ok && h != nil {
				h(ctx, ev)
			}
			// An update interrupted by cancellation stays unacknowledged and
			// is delivered again on the next start.
			if err := ctx.Err(); err != nil {
				return err
			}
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				c.saveOffset(ctx, offset)
			}
		}
	}
}

// Disconnect aborts in-flight requests and drops the session. It is safe to
// call more than once.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.bot = nil
	c.connected = false
	return nil
}

// Typing shows the typing indicator in chatID.
func (c *Client) Typing(ctx context.Context, chatID int64) error {
	bot, err := c.current()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// Request, not Send: sendChatAction returns true rather than a Message.
	if _, err := bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return classify("send typing", err)
	}
	return nil
}

// Reply sends text as a reply to the event's message.
func (c *Client) Reply(ctx context.Context, ev model.Event, text string) error {
	bot, err := c.current()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(ev.ChatID, text)
	msg.ReplyToMessageID = ev.MessageID
	if _, err := bot.Send(msg); err != nil {
		return classify("send reply", err)
	}
	return nil
}

func (c *Client) current() (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot == nil {
		return nil, model.ErrNotConnected
	}
	return c.bot, nil
}

func (c *Client) saveOffset(ctx context.Context, offset int) {
	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	// The write must land even when shutdown cancels ctx right after.
	if err := c.store.SaveOffset(context.WithoutCancel(ctx), c.sessionName, offset); err != nil {
		c.log.Warn("save offset", "offset", offset, "error", err)
	}
}

func toEvent(msg *tgbotapi.Message) (model.Event, bool) {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return model.Event{}, false
	}

	ev := model.Event{
		MessageID:       msg.MessageID,
		ChatID:          msg.Chat.ID,
		SenderID:        msg.From.ID,
		SenderFirstName: msg.From.FirstName,
		SenderUsername:  msg.From.UserName,
		Text:            msg.Text,
		IsPrivate:       msg.Chat.IsPrivate(),
	}
	if msg.Text == "" {
		ev.Text = msg.Caption
	}
	if r := msg.ReplyToMessage; r != nil {
		ev.IsReply = true
		if r.From != nil {
			ev.ReplyTo = &model.MessageRef{MessageID: r.MessageID, SenderID: r.From.ID}
		}
	}
	return ev, true
}

func isUnauthorized(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

// classify maps Bot API failures onto the model error taxonomy.
func classify(op string, err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return &model.TransientNetworkError{Op: op, Err: err}
	}
	switch {
	case apiErr.RetryAfter > 0:
		return &model.RateLimitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second, Err: err}
	case apiErr.Code == http.StatusUnauthorized:
		return &model.AuthenticationError{Reason: "token rejected", Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
