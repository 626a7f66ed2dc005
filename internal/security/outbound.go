// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// DefaultOutboundTimeout は外部プロバイダー呼び出しのデフォルトタイムアウト。
const DefaultOutboundTimeout = 10 * time.Second

// NewOutboundClient はOAuthプロバイダー・カレンダーAPI呼び出し用のHTTPクライアントを生成する。
// safeurlにより以下がブロックされる:
//   - https以外のスキーム、443以外のポート
//   - プライベートIP、ループバック、リンクローカル（メタデータIPを含む）
//
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディング攻撃にも対応している。
func NewOutboundClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultOutboundTimeout
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}
