// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはクレデンシャルストアのみが生成・検証し、APIレスポンスには含めない。
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity はリクエスト単位で解決された呼び出し元の識別情報を表す。
// トークンから毎回導出され、サーバー側には保存しない。
type Identity struct {
	UserID int64
}
