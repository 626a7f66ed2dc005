package middleware

import "testing"

func TestIsBlockedUserAgent(t *testing.T) {
	tests := []struct {
		ua   string
		want bool
	}{
		{"curl/7.79", true},
		{"Wget/1.21", true},
		{"python-requests/2.31", true},
		{"HTTPie/3.2", true},
		{"Go-http-client/1.1", true},
		{"Mozilla/5.0 (compatible; Googlebot/2.1)", true},
		{"AhrefsCrawler", true},
		{"Baiduspider", true},
		{"SiteScraper 1.0", true},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ua, func(t *testing.T) {
			if got := IsBlockedUserAgent(tt.ua, DefaultBlockedUserAgents); got != tt.want {
				t.Errorf("IsBlockedUserAgent(%q) = %v, want %v", tt.ua, got, tt.want)
			}
		})
	}
}

func TestIPBlockCheck(t *testing.T) {
	c := NewIPBlockCheck([]string{"203.0.113.9"})

	if halt := c.Evaluate(nil, nil, RequestInfo{ClientIP: "203.0.113.9"}); halt == nil || halt.Status != 403 {
		t.Errorf("blocked ip: halt = %+v, want 403", halt)
	}
	if halt := c.Evaluate(nil, nil, RequestInfo{ClientIP: "192.0.2.1"}); halt != nil {
		t.Errorf("allowed ip: halt = %+v, want nil", halt)
	}
}
