// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/notekeep/internal/auth"
	"github.com/hitoshi/notekeep/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// identityContextKey はリクエストコンテキストに識別情報を格納するためのキー。
	identityContextKey = contextKey("identity")
	// authenticatedContextKey は認証処理が実行済みであることを示すマーカーのキー。
	authenticatedContextKey = contextKey("authenticated")
)

// TokenVerifier はトークン検証のインターフェース。
// auth.TokenServiceが実装する。
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// VerificationRecorder はトークン検証結果の記録インターフェース。
type VerificationRecorder interface {
	RecordTokenVerification(result string)
}

// NewAuthenticator はAuthorizationヘッダーのBearerトークンを検証し、
// 識別情報をリクエストコンテキストに注入するミドルウェアを返す。
//
// このミドルウェアはリクエストを拒否しない。トークンの欠落・不正・期限切れは
// すべて匿名リクエストとして後続に渡し、識別情報を要求するかどうかはハンドラーが判断する。
// OPTIONSリクエストには識別情報を解決せず200で応答する。
// recorderがnilの場合は検証結果を記録しない。
func NewAuthenticator(verifier TokenVerifier, recorder VerificationRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			ctx := r.Context()
			if ctx.Value(authenticatedContextKey) != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx = context.WithValue(ctx, authenticatedContextKey, true)

			token, ok := bearerToken(r)
			if !ok {
				record(recorder, "missing")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			subject, err := verifier.Verify(token)
			if err != nil {
				reason := failureReason(err)
				record(recorder, reason)
				slog.Warn("token verification failed",
					slog.String("reason", reason),
					slog.String("path", r.URL.Path),
				)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			record(recorder, "valid")
			if _, exists := IdentityFromContext(ctx); !exists {
				ctx = ContextWithIdentity(ctx, &model.Identity{UserID: subject})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// failureReason は検証エラーをログとメトリクス用の理由カテゴリに変換する。
func failureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed"
	}
}

func record(recorder VerificationRecorder, result string) {
	if recorder != nil {
		recorder.RecordTokenVerification(result)
	}
}

// IdentityFromContext はリクエストコンテキストから識別情報を取得する。
// 匿名リクエストの場合はfalseを返す。
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// UserIDFromContext はリクエストコンテキストから呼び出し元のユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return 0, false
	}
	return identity.UserID, true
}

// ContextWithIdentity はコンテキストに識別情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
