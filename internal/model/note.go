// Package model はドメインモデルを定義する。
package model

import "time"

// Note はユーザーが所有するノートを表す。
// OwnerIDは作成時に一度だけ設定され、以後変更されない。
// ShareTokenは初回共有時に生成されるまで空文字列で、生成後は不変。
type Note struct {
	ID         int64
	Title      string
	Content    string
	OwnerID    int64
	ShareToken string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsShared はノートに共有トークンが発行済みかどうかを返す。
func (n *Note) IsShared() bool {
	return n.ShareToken != ""
}
