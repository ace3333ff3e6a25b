package config

import (
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, envMap(map[string]string{"OPENROUTER_API_KEY": "k"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != "irc.libera.chat" || cfg.Port != 6667 {
		t.Errorf("server defaults = %s:%d", cfg.Server, cfg.Port)
	}
	if cfg.Transport != TransportIRC {
		t.Errorf("transport default = %q", cfg.Transport)
	}
	if cfg.LeadIdle != 90*time.Second || cfg.LeadJitter != 30*time.Second {
		t.Errorf("lead defaults = %v / %v", cfg.LeadIdle, cfg.LeadJitter)
	}
	if cfg.SuspectAfter != 3 || cfg.SuppressAfter != 5 || cfg.LoopCooldown != 5*time.Minute {
		t.Errorf("loop guard defaults = %d/%d/%v", cfg.SuspectAfter, cfg.SuppressAfter, cfg.LoopCooldown)
	}
	if cfg.RateCeiling != 10 || cfg.RateWindow != time.Minute {
		t.Errorf("rate defaults = %d/%v", cfg.RateCeiling, cfg.RateWindow)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	env := map[string]string{
		"OPENROUTER_API_KEY": "k",
		"IRC_NICK":           "envnick",
		"IRC_CHANNELS":       "#from-env",
		"MODEL":              "env-model",
	}
	cfg, err := Load([]string{"-nickname", "flagnick", "-channel", "#a,#b", "-model", "flag-model", "-lead"}, envMap(env))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Nick != "flagnick" {
		t.Errorf("Nick = %q, want flag value", cfg.Nick)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[0] != "#a" || cfg.Channels[1] != "#b" {
		t.Errorf("Channels = %v", cfg.Channels)
	}
	if cfg.Model != "flag-model" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if !cfg.Lead {
		t.Error("Lead not set by flag")
	}
}

func TestValidate(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"OPENROUTER_API_KEY": "k",
			"MODEL":              "m",
			"IRC_CHANNELS":       "#chat",
		}
	}
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantErr string
	}{
		{"ok", func(map[string]string) {}, ""},
		{"missing_key", func(m map[string]string) { delete(m, "OPENROUTER_API_KEY") }, "credential"},
		{"missing_model", func(m map[string]string) { delete(m, "MODEL") }, "model identifier"},
		{"missing_channel", func(m map[string]string) { delete(m, "IRC_CHANNELS") }, "no channel"},
		{"bad_channel", func(m map[string]string) { m["IRC_CHANNELS"] = "chat" }, "must start with"},
		{"twitch_without_token", func(m map[string]string) { m["TRANSPORT"] = "twitch" }, "TWITCH_OAUTH_TOKEN"},
		{"unknown_transport", func(m map[string]string) { m["TRANSPORT"] = "xmpp" }, "unknown transport"},
		{"inverted_thresholds", func(m map[string]string) {
			m["LOOP_SUSPECT_AFTER"] = "5"
			m["LOOP_SUPPRESS_AFTER"] = "3"
		}, "LOOP_SUPPRESS_AFTER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := base()
			tt.mutate(env)
			cfg, err := Load(nil, envMap(env))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFallbackCredentialVar(t *testing.T) {
	cfg, err := Load(nil, envMap(map[string]string{"MODEL_API_KEY": "alt"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "alt" {
		t.Errorf("APIKey = %q, want MODEL_API_KEY fallback", cfg.APIKey)
	}
}
