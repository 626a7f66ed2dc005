// Package cleanup はプロセス内レート制限エントリの定期削除ジョブを提供する。
// ウィンドウが経過したエントリはアクセス時にも削除されるが、
// 二度と参照されないキーはこのジョブが回収する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はスイープの実行間隔。
const DefaultInterval = 5 * time.Minute

// Sweeper はウィンドウが経過したエントリを削除し、削除件数を返す。
// ratelimit.MemoryStore が実装する。
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Recorder はスイープ結果を記録する。
type Recorder interface {
	RecordSweep(removed int)
}

type nopRecorder struct{}

func (nopRecorder) RecordSweep(int) {}

// CleanupJob はレート制限エントリのスイープジョブ。
// 冪等であり、削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	store    Sweeper
	logger   *slog.Logger
	recorder Recorder
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store Sweeper, logger *slog.Logger, recorder Recorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CleanupJob{
		store:    store,
		logger:   logger,
		recorder: recorder,
	}
}

// Run はスイープを1回実行する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	removed, err := j.store.Sweep(ctx)
	if err != nil {
		j.logger.Error("レート制限エントリのスイープに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レート制限エントリのスイープに失敗: %w", err)
	}
	j.recorder.RecordSweep(removed)

	duration := time.Since(start)
	j.logger.Info("レート制限エントリのスイープが完了しました",
		slog.Int("removed_count", removed),
		slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
	)
	return nil
}

// Start はinterval間隔でRunを実行する。コンテキストがキャンセルされるまで継続する。
// intervalが0以下の場合はDefaultIntervalを使う。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("スイープジョブを開始しました", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("スイープジョブを停止しました")
			return
		case <-ticker.C:
			// エラーはRun内でログ出力済み
			_ = j.Run(ctx)
		}
	}
}
