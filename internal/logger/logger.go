package logger

import (
	"io"
	"log/slog"
	"os"
)

// level はSetupで生成したすべてのロガーが共有するログレベル。
// 設定読み込み前にロガーを初期化するため、後からSetLevelで変更する。
var level = new(slog.LevelVar)

// redactedKeys はログに値を出力しない属性キー。
var redactedKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"password":      true,
	"client_secret": true,
	"authorization": true,
}

const redacted = "[REDACTED]"

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
// 資格情報を表すキーの値はマスクする。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// SetLevel はSetupで生成したロガーのログレベルを変更する。
func SetLevel(l slog.Level) {
	level.Set(l)
}

func redact(groups []string, a slog.Attr) slog.Attr {
	if redactedKeys[a.Key] {
		return slog.String(a.Key, redacted)
	}
	return a
}
