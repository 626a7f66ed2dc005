package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力の表示名などからHTMLを除去する。
// bluemondayのポリシーはスレッドセーフなので、1インスタンスを共有してよい。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するStrictPolicyのTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
// bluemondayがエスケープした実体参照は元の文字に戻す。
func (s *TextSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
