package middleware

import "net/http"

// corsAllowedMethods はノートAPIが受け付けるメソッド。
const corsAllowedMethods = "GET, POST, PUT, DELETE, OPTIONS"

// NewCORSMiddleware は指定されたオリジンに対するCORSミドルウェアを返す。
// 認証はAuthorizationヘッダーのBearerトークンで行い、Cookieは使わないためAllow-Credentialsは付与しない。
// Access-Control-Request-Methodを伴うOPTIONSのみをプリフライトとみなして204で応答し、
// それ以外のOPTIONSは後続のハンドラーに渡す。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
