package middleware

import (
	"net/http"
	"strings"

	"github.com/hitoshi/planner/internal/model"
)

const apiPathPrefix = "/api/"

// CORSCheck は/api/配下へのクロスオリジンリクエストを許可リストで検証する。
// 許可されたオリジンにはAccess-Control-Allow-*ヘッダーを付与し、
// OPTIONSプリフライトには204で応答する。
// credentials送信と共存するため、ワイルドカード(*)は使用しない。
type CORSCheck struct {
	allowed map[string]struct{}
}

// NewCORSCheck はCORSCheckを生成する。
func NewCORSCheck(allowedOrigins []string) *CORSCheck {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &CORSCheck{allowed: allowed}
}

func (c *CORSCheck) Name() string { return "cors" }

func (c *CORSCheck) Evaluate(w http.ResponseWriter, r *http.Request, info RequestInfo) *Halt {
	if info.Origin == "" || !strings.HasPrefix(info.Path, apiPathPrefix) {
		return nil
	}
	if !c.IsAllowed(info.Origin) {
		return &Halt{Status: http.StatusForbidden, Err: model.NewCORSViolationError(info.Origin)}
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", info.Origin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Max-Age", "86400")
	h.Add("Vary", "Origin")

	// OPTIONSプリフライトリクエストには204で応答
	if r.Method == http.MethodOptions {
		return &Halt{Status: http.StatusNoContent}
	}
	return nil
}

// IsAllowed はoriginが許可リストに含まれるかを返す。
func (c *CORSCheck) IsAllowed(origin string) bool {
	_, ok := c.allowed[origin]
	return ok
}
