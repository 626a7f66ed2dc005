package middleware

import (
	"log/slog"
	"regexp"

	"github.com/hitoshi/planner/internal/ratelimit"
)

// GatekeeperConfig はゲートキーパーの静的設定。
type GatekeeperConfig struct {
	AllowedOrigins           []string
	BlockedUserAgentPatterns []*regexp.Regexp
	BlockedIPs               []string
	MaxRequestsPerMinute     int
}

// NewGatekeeper は標準のチェック順序でPipelineを構成する。
//
//	User-Agent → IPブロック → レート制限 → CORS
//
// BlockedUserAgentPatternsが空の場合はDefaultBlockedUserAgentsを使用する。
func NewGatekeeper(cfg GatekeeperConfig, store ratelimit.Store, logger *slog.Logger, recorder DecisionRecorder) *Pipeline {
	patterns := cfg.BlockedUserAgentPatterns
	if len(patterns) == 0 {
		patterns = DefaultBlockedUserAgents
	}

	return NewPipeline(logger, recorder,
		NewUserAgentCheck(patterns),
		NewIPBlockCheck(cfg.BlockedIPs),
		NewRateLimitCheck(store, cfg.MaxRequestsPerMinute, logger),
		NewCORSCheck(cfg.AllowedOrigins),
	)
}
