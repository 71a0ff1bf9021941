package session

import "github.com/matheus3301/chatsync/internal/config"

const DefaultSessionName = "main"

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. CHATSYNC_SESSION
// 3. config.toml [session] name
// 4. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.LoadOrDefault(ConfigPath())
	if err != nil {
		return DefaultSessionName
	}
	if err := cfg.ApplyEnv(); err == nil && cfg.Session.Name != "" {
		return cfg.Session.Name
	}
	return DefaultSessionName
}
