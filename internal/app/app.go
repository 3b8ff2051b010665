package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/notekeep/internal/auth"
	"github.com/hitoshi/notekeep/internal/authz"
	"github.com/hitoshi/notekeep/internal/config"
	"github.com/hitoshi/notekeep/internal/database"
	"github.com/hitoshi/notekeep/internal/handler"
	"github.com/hitoshi/notekeep/internal/logger"
	"github.com/hitoshi/notekeep/internal/metrics"
	"github.com/hitoshi/notekeep/internal/note"
	"github.com/hitoshi/notekeep/internal/repository"
	"github.com/hitoshi/notekeep/internal/security"
	"github.com/hitoshi/notekeep/internal/share"
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

	// 3. 設定に従ってログレベルを切り替える
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, known := lookupCommand(args)

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

	if !known {
		slog.Warn("unknown command, falling back to serve",
			slog.String("arg", args[0]),
			slog.Any("supported", Commands()),
		)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("storage_driver", cfg.StorageDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stores はストレージドライバーに応じて構築したリポジトリ群。
type stores struct {
	users  repository.UserRepository
	notes  repository.NoteRepository
	health handler.HealthChecker
}

// openStores はSTORAGE_DRIVERに応じてリポジトリを構築する。
// postgresの場合は接続を確認し、返却するcloseでDB接続を閉じる。
func openStores(cfg *config.Config) (*stores, func(), error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		slog.Warn("using in-memory storage; data is lost on restart")
		return &stores{
			users: repository.NewMemoryUserRepo(),
			notes: repository.NewMemoryNoteRepo(),
		}, func() {}, nil
	}

	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("database connection established")

	return &stores{
		users:  repository.NewPostgresUserRepo(db),
		notes:  repository.NewPostgresNoteRepo(db),
		health: db,
	}, func() { db.Close() }, nil
}

// newHandler は全依存関係をワイヤリングしたHTTPハンドラーを構築する。
func newHandler(cfg *config.Config, st *stores) http.Handler {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. 認証
	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret: []byte(cfg.TokenSecret),
		TTL:    cfg.TokenTTL,
	})
	authService := auth.NewService(st.users, security.NewBcryptHasher(cfg.BcryptCost), tokens)

	// 3. 認可と共有
	guard := authz.NewGuard(collector)
	shares := share.NewManager(st.notes, share.Config{
		BaseURL:  cfg.ShareBaseURL,
		Recorder: collector,
	})

	// 4. ノート
	noteService := note.NewService(st.notes, st.users, guard, shares, security.NewContentSanitizer())

	// 5. ルーター
	return handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(registry),
		HealthChecker:     st.health,
		AuthService:       authService,
		NoteService:       noteService,
	})
}

// runServe はAPIサーバーモードで起動する。
// リポジトリを構築し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	st, closeStores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newHandler(cfg, st),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用し、適用前後のスキーマバージョンを記録する。
func runMigrate(cfg *config.Config) error {
	if cfg.StorageDriver == config.StorageDriverMemory {
		return fmt.Errorf("migrate requires STORAGE_DRIVER=%s", config.StorageDriverPostgres)
	}

	from, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Uint64("from_version", uint64(from)),
		slog.Bool("dirty", dirty),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	to, _, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(from)),
		slog.Uint64("to_version", uint64(to)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// compile-time check
var _ handler.HealthChecker = (*sql.DB)(nil)
