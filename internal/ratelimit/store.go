// Package ratelimit はリセット型の固定ウィンドウによるレート制限カウンターを提供する。
//
// 各キーはカウントとウィンドウのリセット時刻のみを保持する。
// リセット時刻を過ぎた最初の呼び出しでカウントが1に戻る。
// 上限に達した呼び出しはカウントを増やさずに拒否される。
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidPolicy はlimitまたはwindowが正でない場合のエラー。
var ErrInvalidPolicy = errors.New("rate limit policy must have positive limit and window")

// Decision は1回のCheck呼び出しの判定結果。
type Decision struct {
	Allowed bool
	Count   int       // 判定後のウィンドウ内カウント
	ResetAt time.Time // 現在のウィンドウがリセットされる時刻
}

// RetryAfter はnowからウィンドウのリセットまでの秒数を切り上げで返す。最小1秒。
func (d Decision) RetryAfter(now time.Time) int {
	secs := int((d.ResetAt.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Store はレート制限カウンターの保存先を抽象化する。
// 単一インスタンス構成ではMemoryStore、複数インスタンス構成ではRedisStoreを使う。
type Store interface {
	// Check はkeyのカウンターを評価し、許可されればカウントを1増やす。
	Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
	// Clear はkeyの履歴を削除する。次のCheckは新しいウィンドウとして扱われる。
	Clear(ctx context.Context, key string) error
}

// Policy はレート制限の上限とウィンドウ幅の組。
type Policy struct {
	Limit  int
	Window time.Duration
}

// 既定のポリシー
var (
	// DefaultRequestPolicy は (クライアントIP, パス) ごとの一般リクエストの制限。
	DefaultRequestPolicy = Policy{Limit: 100, Window: time.Minute}
	// AuthAttemptPolicy はパスワードリセット・サインアップ等の認証系エンドポイントの制限。
	AuthAttemptPolicy = Policy{Limit: 3, Window: 15 * time.Minute}
)

func (p Policy) validate() error {
	if p.Limit <= 0 || p.Window <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}
