package security

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUntrustedRedirect はリダイレクト先が許可されたオリジンにないことを示す。
var ErrUntrustedRedirect = errors.New("untrusted redirect target")

// ValidateRedirectTarget はrawURLのオリジンがallowedOriginsに含まれるかを検証する。
// パスワード再設定メールのリダイレクト先など、外部に渡すURLのオープンリダイレクトを防ぐ。
func ValidateRedirectTarget(rawURL string, allowedOrigins []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedRedirect, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: disallowed scheme %q", ErrUntrustedRedirect, parsed.Scheme)
	}
	if parsed.Host == "" || parsed.User != nil {
		return fmt.Errorf("%w: %s", ErrUntrustedRedirect, rawURL)
	}

	origin := scheme + "://" + strings.ToLower(parsed.Host)
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return nil
		}
	}
	return fmt.Errorf("%w: origin %s", ErrUntrustedRedirect, origin)
}
