package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/planner/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code       string                      `json:"code"`
	Message    string                      `json:"message"`
	Category   string                      `json:"category"`
	Action     string                      `json:"action"`
	RetryAfter int                         `json:"retryAfter,omitempty"`
	Errors     []model.ValidationErrorCode `json:"errors,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeBody(w, statusCode, newBody(apiErr))
}

// WriteRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-AfterヘッダーとJSONのretryAfterにはウィンドウがリセットされるまでの秒数を設定する。
func WriteRateLimitResponse(w http.ResponseWriter, retryAfterSec int) {
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))

	body := newBody(model.NewRateLimitError())
	body.RetryAfter = retryAfterSec
	writeBody(w, http.StatusTooManyRequests, body)
}

// WriteValidationErrorResponse はフィールド単位のエラーコードを含む400レスポンスを書き込む。
func WriteValidationErrorResponse(w http.ResponseWriter, codes []model.ValidationErrorCode) {
	body := newBody(model.NewValidationError())
	body.Errors = codes
	writeBody(w, http.StatusBadRequest, body)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: model.CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	})
}

func newBody(apiErr *model.APIError) ErrorResponseBody {
	return ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

func writeBody(w http.ResponseWriter, statusCode int, body ErrorResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
