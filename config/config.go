// Package config loads environment variables and command-line flags into a typed
// Config used across the bridge. Environment supplies defaults; flags override.
// Required credentials are checked by Validate before any network activity.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transport kinds accepted by the -transport flag.
const (
	TransportIRC    = "irc"
	TransportTwitch = "twitch"
)

type Config struct {
	// Transport
	Transport        string // irc | twitch
	Server           string
	Port             int
	TLS              bool
	Nick             string
	ServerPass       string // optional PASS at registration (irc transport)
	Channels         []string
	TwitchOAuthToken string

	// Model
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	ModelTimeout time.Duration

	// Conversation
	Lead          bool
	LeadIdle      time.Duration
	LeadJitter    time.Duration
	CoalesceQuiet time.Duration
	HistoryCap    int
	HistoryMaxAge time.Duration
	WindowTurns   int
	WindowMaxAge  time.Duration
	BotNicks      []string

	// Loop guard
	SuspectAfter  int
	SuppressAfter int
	LoopCooldown  time.Duration

	// Outbound rate
	RateCeiling  int
	RateWindow   time.Duration
	SendInterval time.Duration
	ChunkBytes   int

	// Reconnect
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Ops HTTP server ("" disables)
	HTTPAddr string
}

// Load reads environment variables, applies defaults, then parses args as flags
// overriding the environment. getenv abstracts os.Getenv for tests.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Transport:        envStr(getenv, "TRANSPORT", TransportIRC),
		Server:           envStr(getenv, "IRC_SERVER", "irc.libera.chat"),
		Port:             envInt(getenv, "IRC_PORT", 6667),
		TLS:              envBool(getenv, "IRC_TLS", false),
		Nick:             envStr(getenv, "IRC_NICK", "bot"),
		ServerPass:       getenv("IRC_PASS"),
		TwitchOAuthToken: getenv("TWITCH_OAUTH_TOKEN"),
		APIKey:           getenv("OPENROUTER_API_KEY"),
		BaseURL:          envStr(getenv, "MODEL_BASE_URL", "https://openrouter.ai/api/v1"),
		Model:            getenv("MODEL"),
		SystemPrompt:     envStr(getenv, "SYSTEM_PROMPT", "You are a concise, friendly participant in an IRC channel. Reply in plain text, one short paragraph at most."),
		ModelTimeout:     envDuration(getenv, "MODEL_TIMEOUT", 60*time.Second),
		Lead:             envBool(getenv, "LEAD_MODE", false),
		LeadIdle:         envDuration(getenv, "LEAD_IDLE_THRESHOLD", 90*time.Second),
		LeadJitter:       envDuration(getenv, "LEAD_JITTER", 30*time.Second),
		CoalesceQuiet:    envDuration(getenv, "COALESCE_QUIET", time.Second),
		HistoryCap:       envInt(getenv, "HISTORY_CAPACITY", 200),
		HistoryMaxAge:    envDuration(getenv, "HISTORY_MAX_AGE", time.Hour),
		WindowTurns:      envInt(getenv, "WINDOW_TURNS", 40),
		WindowMaxAge:     envDuration(getenv, "WINDOW_MAX_AGE", 30*time.Minute),
		SuspectAfter:     envInt(getenv, "LOOP_SUSPECT_AFTER", 3),
		SuppressAfter:    envInt(getenv, "LOOP_SUPPRESS_AFTER", 5),
		LoopCooldown:     envDuration(getenv, "LOOP_COOLDOWN", 5*time.Minute),
		RateCeiling:      envInt(getenv, "RATE_CEILING", 10),
		RateWindow:       envDuration(getenv, "RATE_WINDOW", time.Minute),
		SendInterval:     envDuration(getenv, "SEND_INTERVAL", 100*time.Millisecond),
		ChunkBytes:       envInt(getenv, "CHUNK_BYTES", 450),
		BackoffBase:      envDuration(getenv, "RECONNECT_BACKOFF_BASE", 2*time.Second),
		BackoffCap:       envDuration(getenv, "RECONNECT_BACKOFF_CAP", 2*time.Minute),
		HTTPAddr:         getenv("HTTP_ADDR"),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = getenv("MODEL_API_KEY")
	}
	channels := envStr(getenv, "IRC_CHANNELS", "")
	bots := getenv("BOT_NICKS")

	fs := flag.NewFlagSet("chatbridge", flag.ContinueOnError)
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport kind: irc or twitch")
	fs.StringVar(&cfg.Server, "server", cfg.Server, "IRC server address")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "IRC server port")
	fs.BoolVar(&cfg.TLS, "tls", cfg.TLS, "use TLS for the IRC connection")
	fs.StringVar(&cfg.Nick, "nickname", cfg.Nick, "IRC nickname")
	fs.StringVar(&channels, "channel", channels, "comma-separated channels to join")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "model identifier")
	fs.BoolVar(&cfg.Lead, "lead", cfg.Lead, "start conversations when the channel is idle")
	fs.StringVar(&bots, "bots", bots, "comma-separated nicknames known to be bots")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Channels = splitList(channels)
	cfg.BotNicks = splitList(bots)
	return cfg, nil
}

// Validate checks required fields. It runs before any network activity so a
// missing credential never reaches the connect path.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("missing model credential: set OPENROUTER_API_KEY (or MODEL_API_KEY)")
	}
	if c.Model == "" {
		return fmt.Errorf("missing model identifier: set -model or MODEL")
	}
	if c.Nick == "" {
		return fmt.Errorf("missing nickname")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("no channel configured: set -channel or IRC_CHANNELS")
	}
	switch c.Transport {
	case TransportIRC:
		for _, ch := range c.Channels {
			if !strings.HasPrefix(ch, "#") && !strings.HasPrefix(ch, "&") {
				return fmt.Errorf("invalid channel %q: must start with # or &", ch)
			}
		}
	case TransportTwitch:
		if c.TwitchOAuthToken == "" {
			return fmt.Errorf("twitch transport requires TWITCH_OAUTH_TOKEN")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.SuppressAfter < c.SuspectAfter {
		return fmt.Errorf("LOOP_SUPPRESS_AFTER (%d) must be >= LOOP_SUSPECT_AFTER (%d)", c.SuppressAfter, c.SuspectAfter)
	}
	if c.RateCeiling <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("rate ceiling and window must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envStr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(getenv func(string) string, key string, def int) int {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(getenv func(string) string, key string, def bool) bool {
	switch strings.ToLower(getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
