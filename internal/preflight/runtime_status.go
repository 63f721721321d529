package preflight

import (
	"context"
	"strings"

	"syndicate/internal/config"
)

// CheckEventsFromConfig evaluates Redis event publishing status.
func CheckEventsFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Redis"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Events.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckRedis(ctx, cfg.Events.RedisAddr, cfg.Events.RedisDB)
}

// CheckNotificationsFromConfig evaluates ntfy status from config and connectivity.
func CheckNotificationsFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "ntfy"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckNtfy(ctx, cfg.Notifications.NtfyTopic)
}

// CheckAuthFromConfig reports whether buyer and admin credentials are configured.
func CheckAuthFromConfig(cfg *config.Config) Result {
	const name = "API auth"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	var missing []string
	if strings.TrimSpace(cfg.Paths.APIToken) == "" {
		missing = append(missing, "api_token")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		missing = append(missing, "jwt_secret")
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "Missing " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: "Configured"}
}
