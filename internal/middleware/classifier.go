package middleware

import (
	"net/http"
	"regexp"

	"github.com/hitoshi/planner/internal/model"
)

// DefaultBlockedUserAgents は自動クライアントとして拒否するUser-Agentのパターン。
var DefaultBlockedUserAgents = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bot`),
	regexp.MustCompile(`(?i)crawler`),
	regexp.MustCompile(`(?i)spider`),
	regexp.MustCompile(`(?i)scraper`),
	regexp.MustCompile(`(?i)curl`),
	regexp.MustCompile(`(?i)wget`),
	regexp.MustCompile(`(?i)python-requests`),
	regexp.MustCompile(`(?i)httpie`),
	regexp.MustCompile(`(?i)go-http-client`),
}

// UserAgentCheck はUser-Agentがブロックパターンに一致するリクエストを403で拒否する。
type UserAgentCheck struct {
	patterns []*regexp.Regexp
}

// NewUserAgentCheck はUserAgentCheckを生成する。
func NewUserAgentCheck(patterns []*regexp.Regexp) *UserAgentCheck {
	return &UserAgentCheck{patterns: patterns}
}

func (c *UserAgentCheck) Name() string { return "user_agent" }

func (c *UserAgentCheck) Evaluate(_ http.ResponseWriter, _ *http.Request, info RequestInfo) *Halt {
	if !IsBlockedUserAgent(info.UserAgent, c.patterns) {
		return nil
	}
	return &Halt{Status: http.StatusForbidden, Err: model.NewBlockedAgentError()}
}

// IsBlockedUserAgent はuaがいずれかのパターンに一致するかを返す。
func IsBlockedUserAgent(ua string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(ua) {
			return true
		}
	}
	return false
}

// IPBlockCheck はブロックリストに含まれるクライアントIPを403で拒否する。
type IPBlockCheck struct {
	blocked map[string]struct{}
}

// NewIPBlockCheck はIPBlockCheckを生成する。
func NewIPBlockCheck(ips []string) *IPBlockCheck {
	blocked := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		blocked[ip] = struct{}{}
	}
	return &IPBlockCheck{blocked: blocked}
}

func (c *IPBlockCheck) Name() string { return "ip_block" }

func (c *IPBlockCheck) Evaluate(_ http.ResponseWriter, _ *http.Request, info RequestInfo) *Halt {
	if _, ok := c.blocked[info.ClientIP]; !ok {
		return nil
	}
	return &Halt{Status: http.StatusForbidden, Err: model.NewBlockedIPError()}
}
