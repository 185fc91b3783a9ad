// Package config handles application configuration from environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"auto_responder/internal/model"
)

// DefaultResponseTemplate is used when RESPONSE_TEMPLATE is unset.
const DefaultResponseTemplate = "Good question, Where is Domain?? Maybe still searching msti 🔎 , " +
	"It will take time for him to reach again here ... sorry for late response, " +
	"I will let him know that {username} is still with you .Thank you for Waiting .."

// UsernamePlaceholder is substituted with the sender's display name.
const UsernamePlaceholder = "{username}"

// Error is a configuration error. It is always fatal at startup.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds the application configuration.
type Config struct {
	APIID       int64
	APIHash     string
	PhoneNumber string
	APIEndpoint string

	SessionName string
	SessionDB   string

	LoginCode     string
	LoginPassword string

	RestartDelay        time.Duration
	MaxRestartAttempts  int
	HealthCheckInterval time.Duration

	ResponseTemplate string
	ChatCooldown     time.Duration
	UserCooldown     time.Duration
	RespondTo        model.TriggerSet

	Whitelist    []int64
	Blacklist    []int64
	AllowedChats []int64

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	rawID := os.Getenv("API_ID")
	if rawID == "" {
		return nil, &Error{Key: "API_ID", Err: fmt.Errorf("is required")}
	}
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id <= 0 {
		return nil, &Error{Key: "API_ID", Err: fmt.Errorf("must be a positive integer, got %q", rawID)}
	}
	cfg.APIID = id

	if cfg.APIHash = os.Getenv("API_HASH"); cfg.APIHash == "" {
		return nil, &Error{Key: "API_HASH", Err: fmt.Errorf("is required")}
	}
	if cfg.PhoneNumber = os.Getenv("PHONE_NUMBER"); cfg.PhoneNumber == "" {
		return nil, &Error{Key: "PHONE_NUMBER", Err: fmt.Errorf("is required")}
	}
	cfg.APIEndpoint = os.Getenv("API_ENDPOINT")

	cfg.SessionName = envOrDefault("SESSION_NAME", "my_account")
	cfg.SessionDB = envOrDefault("SESSION_DB", cfg.SessionName+".session")
	cfg.LoginCode = os.Getenv("TELEGRAM_CODE")
	cfg.LoginPassword = os.Getenv("TELEGRAM_PASSWORD")

	if cfg.RestartDelay, err = seconds("AUTO_RESTART_DELAY", 10, 0); err != nil {
		return nil, err
	}
	if cfg.MaxRestartAttempts, err = integer("MAX_RESTART_ATTEMPTS", 10, 1); err != nil {
		return nil, err
	}
	if cfg.HealthCheckInterval, err = seconds("HEALTH_CHECK_INTERVAL", 300, 1); err != nil {
		return nil, err
	}
	if cfg.ChatCooldown, err = seconds("COOLDOWN_PER_CHAT", 60, 0); err != nil {
		return nil, err
	}
	if cfg.UserCooldown, err = seconds("COOLDOWN_PER_USER", 300, 0); err != nil {
		return nil, err
	}

	cfg.ResponseTemplate = envOrDefault("RESPONSE_TEMPLATE", DefaultResponseTemplate)
	if !strings.Contains(cfg.ResponseTemplate, UsernamePlaceholder) {
		return nil, &Error{Key: "RESPONSE_TEMPLATE", Err: fmt.Errorf("must contain %s", UsernamePlaceholder)}
	}

	cfg.RespondTo, err = model.ParseTriggerSet(envOrDefault("RESPOND_TO", "dm,mention,reply"))
	if err != nil {
		return nil, &Error{Key: "RESPOND_TO", Err: err}
	}

	if cfg.Whitelist, err = idList("WHITELIST"); err != nil {
		return nil, err
	}
	if cfg.Blacklist, err = idList("BLACKLIST"); err != nil {
		return nil, err
	}
	if cfg.AllowedChats, err = idList("ALLOWED_CHATS"); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", "info"))
	cfg.LogFile = envOrDefault("LOG_FILE", "bot.log")

	return cfg, nil
}

// BotToken returns the Bot API token, which is the numeric id and secret joined by a colon.
func (c *Config) BotToken() string {
	return fmt.Sprintf("%d:%s", c.APIID, c.APIHash)
}

// LoginSettings returns the names of the configured interactive-login
// variables. A Bot API token never goes through that flow.
func (c *Config) LoginSettings() []string {
	var keys []string
	if c.PhoneNumber != "" {
		keys = append(keys, "PHONE_NUMBER")
	}
	if c.LoginCode != "" {
		keys = append(keys, "TELEGRAM_CODE")
	}
	if c.LoginPassword != "" {
		keys = append(keys, "TELEGRAM_PASSWORD")
	}
	return keys
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func integer(key string, def, lowest int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &Error{Key: key, Err: fmt.Errorf("invalid integer %q", raw)}
	}
	if n < lowest {
		return 0, &Error{Key: key, Err: fmt.Errorf("must be at least %d, got %d", lowest, n)}
	}
	return n, nil
}

// maxSeconds is the largest whole number of seconds a time.Duration holds.
const maxSeconds = math.MaxInt64 / int64(time.Second)

func seconds(key string, def, lowest int) (time.Duration, error) {
	n, err := integer(key, def, lowest)
	if err != nil {
		return 0, err
	}
	if int64(n) > maxSeconds {
		return 0, &Error{Key: key, Err: fmt.Errorf("must be at most %d seconds, got %d", maxSeconds, n)}
	}
	return time.Duration(n) * time.Second, nil
}

// idList parses a JSON array of ids. Numeric strings are coerced; null, zero
// and blank entries are skipped.
func idList(key string) ([]int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, &Error{Key: key, Err: fmt.Errorf("must be a JSON array: %w", err)}
	}

	var ids []int64
	for _, item := range items {
		if string(item) == "null" {
			continue
		}
		var n json.Number
		var s string
		switch {
		case json.Unmarshal(item, &n) == nil:
			s = n.String()
		case json.Unmarshal(item, &s) == nil:
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
		default:
			return nil, &Error{Key: key, Err: fmt.Errorf("invalid id %s", item)}
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, &Error{Key: key, Err: fmt.Errorf("invalid id %q", s)}
		}
		if id == 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
