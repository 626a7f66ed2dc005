package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/planner/internal/auth"
	"github.com/hitoshi/planner/internal/calendar"
	"github.com/hitoshi/planner/internal/config"
	"github.com/hitoshi/planner/internal/database"
	"github.com/hitoshi/planner/internal/handler"
	"github.com/hitoshi/planner/internal/integration"
	"github.com/hitoshi/planner/internal/logger"
	"github.com/hitoshi/planner/internal/metrics"
	"github.com/hitoshi/planner/internal/middleware"
	"github.com/hitoshi/planner/internal/ratelimit"
	"github.com/hitoshi/planner/internal/repository"
	"github.com/hitoshi/planner/internal/security"
	"github.com/hitoshi/planner/internal/validation"
	"github.com/hitoshi/planner/internal/worker/cleanup"
)

const (
	// redisPingTimeout は起動時のRedis疎通確認のタイムアウト。
	redisPingTimeout = 3 * time.Second

	healthcheckUserAgent = "planner-healthcheck"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("log_level", cfg.LogLevel.String()),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクスレジストリ
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 3. レート制限ストア
	store, closeStore, err := newRateLimitStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// プロセス内ストアのみ定期スイープが必要（RedisはTTLで失効する）
	if sweeper, ok := store.(cleanup.Sweeper); ok {
		job := cleanup.NewCleanupJob(sweeper, slog.Default(), collector)
		go job.Start(ctx, cfg.SweepInterval)
	}

	// 4. ルーターの構築
	router, err := buildRouter(cfg, db, store, reg, collector)
	if err != nil {
		return err
	}

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter はドメインサービスとハンドラーをワイヤリングし、ルーターを返す。
// dbがnilの場合、/healthは依存先を確認しない。
func buildRouter(cfg *config.Config, db *sql.DB, store ratelimit.Store, reg *prometheus.Registry, collector *metrics.Collector) (http.Handler, error) {
	uaPatterns, err := compileUserAgentPatterns(cfg.BlockedUserAgents)
	if err != nil {
		return nil, err
	}

	// 1. 外部呼び出し用HTTPクライアント
	// Google向けはSSRF対策済み、IDプロバイダーは運用者が設定した固定URLのため通常のクライアント
	outbound := security.NewOutboundClient(cfg.OutboundTimeout)
	identityHTTP := &http.Client{Timeout: cfg.OutboundTimeout}

	// 2. カレンダー連携
	repo := repository.NewPostgresIntegrationRepo(db)
	tokenClient := integration.NewGoogleTokenClient(integration.GoogleTokenConfig{
		ClientID:          cfg.GoogleClientID,
		ClientSecret:      cfg.GoogleClientSecret,
		RedirectURL:       cfg.GoogleRedirectURL,
		RequestsPerSecond: cfg.GoogleRequestsPerSecond,
	}, outbound)
	integrationService := integration.NewService(tokenClient, repo, slog.Default(), collector)
	calendarClient := calendar.NewClient(integrationService, outbound, calendar.Config{
		Endpoint: cfg.CalendarEndpoint,
	})

	// 3. 認証
	identity := auth.NewIdentityClient(auth.IdentityConfig{
		BaseURL: cfg.IdentityURL,
		APIKey:  cfg.IdentityAPIKey,
	}, identityHTTP)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience)
	refresher := auth.NewSessionRefreshDecider(identity, slog.Default())
	authLimiter := middleware.NewAuthRateLimiter(store, slog.Default())

	// 4. ゲートキーパー
	gatekeeper := middleware.NewGatekeeper(middleware.GatekeeperConfig{
		AllowedOrigins:           cfg.AllowedOrigins,
		BlockedUserAgentPatterns: uaPatterns,
		BlockedIPs:               cfg.BlockedIPs,
		MaxRequestsPerMinute:     cfg.MaxRequestsPerMinute,
	}, store, slog.Default(), collector)

	slog.Info("gatekeeper configured",
		slog.Any("checks", gatekeeper.CheckNames()),
		slog.Int("allowed_origins", len(cfg.AllowedOrigins)),
		slog.Int("blocked_ips", len(cfg.BlockedIPs)),
	)

	var health handler.HealthChecker
	if db != nil {
		health = db
	}

	deps := &handler.RouterDeps{
		Gatekeeper:      gatekeeper,
		SessionVerifier: verifier,
		AuthLimiter:     authLimiter,
		Logger:          slog.Default(),

		HealthChecker:  health,
		MetricsHandler: metrics.Handler(reg),

		AuthHandler: handler.NewAuthHandler(
			identity, refresher,
			validation.NewValidator(security.NewTextSanitizer()),
			authLimiter,
			handler.AuthHandlerConfig{
				RecoveryRedirectURL:    cfg.PasswordResetURL,
				AllowedRedirectOrigins: cfg.AllowedOrigins,
			},
		),
		CalendarHandler: handler.NewCalendarHandler(integrationService, calendarClient, handler.CalendarHandlerConfig{
			DashboardURL: cfg.DashboardURL,
		}),
	}

	return handler.NewRouter(deps), nil
}

// newRateLimitStore はREDIS_URLが設定されていればRedisStore、なければMemoryStoreを返す。
// 戻り値のcloseは接続の後始末を行う。
func newRateLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("using in-process rate limit store")
		return ratelimit.NewMemoryStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("using redis rate limit store", slog.String("addr", opts.Addr))
	store := ratelimit.NewRedisStore(client, ratelimit.RedisConfig{KeyPrefix: "planner:ratelimit"})
	return store, func() { client.Close() }, nil
}

// compileUserAgentPatterns は大文字小文字を区別しない正規表現に変換する。
func compileUserAgentPatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid BLOCKED_USER_AGENTS pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	// Go標準のUser-Agentはゲートキーパーの既定パターンで拒否される
	req.Header.Set("User-Agent", healthcheckUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
