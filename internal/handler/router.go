package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/notekeep/internal/metrics"
	"github.com/hitoshi/notekeep/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	Logger            *slog.Logger

	// メトリクス（nilの場合は記録・公開しない）
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// ヘルスチェック（nilの場合は常に200）
	HealthChecker HealthChecker

	AuthService AuthServiceInterface
	NoteService NoteServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → SecurityHeaders → Metrics → Authenticator → Logging
//
// Authenticatorはリクエストを拒否しないため、全ルートに適用する。
// 識別情報が必要なエンドポイントはハンドラー内で401を返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	var verificationRecorder middleware.VerificationRecorder
	if deps.Metrics != nil {
		r.Use(metrics.NewStatusMiddleware(deps.Metrics))
		verificationRecorder = deps.Metrics
	}
	r.Use(middleware.NewAuthenticator(deps.TokenVerifier, verificationRecorder))
	r.Use(middleware.NewLoggingMiddleware(logger))

	authHandler := NewAuthHandler(deps.AuthService)
	noteHandler := NewNoteHandler(deps.NoteService)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/api/notes", func(r chi.Router) {
		r.Post("/", noteHandler.CreateNote)
		r.Get("/", noteHandler.ListNotes)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", noteHandler.GetNote)
			r.Put("/", noteHandler.UpdateNote)
			r.Delete("/", noteHandler.DeleteNote)
			r.Post("/share", noteHandler.ShareNote)
		})
	})

	// 共有リンク（認証不要）
	r.Get("/api/share/{token}", noteHandler.GetSharedNote)

	return r
}
