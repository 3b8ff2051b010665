package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// headerTracker はレスポンスヘッダーが送信済みかどうかを記録する。
type headerTracker struct {
	http.ResponseWriter
	sent bool
}

func (t *headerTracker) WriteHeader(code int) {
	t.sent = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.sent = true
	return t.ResponseWriter.Write(b)
}

// NewRecoveryMiddleware はハンドラー内のpanicを回復し、統一フォーマットの500を返すミドルウェアを生成する。
// http.ErrAbortHandlerは接続中断の合図のため回復せず、net/httpにそのまま渡す。
// panic前にレスポンスの送信が始まっていた場合は、ログのみ記録してボディを追記しない。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &headerTracker{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", tw.sent),
					slog.String("stack", string(debug.Stack())),
				)
				if !tw.sent {
					WriteInternalServerError(w)
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}
