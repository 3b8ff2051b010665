// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/notekeep/internal/model"
)

var (
	// ErrNotFound は更新・削除対象のレコードが存在しない場合のエラー。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約に違反した場合のエラー。
	ErrDuplicate = errors.New("duplicate record")
)

// UserRepository はユーザーデータの永続化インターフェース（クレデンシャルストア）。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDをuser.IDに設定する。
	// メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error
}

// NoteRepository はノートデータの永続化インターフェース（ノートストア）。
// 認可判定は行わず、呼び出し側が取得結果に対して判定する。
type NoteRepository interface {
	// FindByID は指定IDのノートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Note, error)

	// FindByOwner は所有者IDに紐づくノート一覧をID昇順で返す。
	FindByOwner(ctx context.Context, ownerID int64) ([]*model.Note, error)

	// FindByShareToken は共有トークンでノートを検索する。見つからない場合はnilを返す。
	FindByShareToken(ctx context.Context, token string) (*model.Note, error)

	// Create はノートを作成し、採番されたIDとタイムスタンプをnoteに設定する。
	Create(ctx context.Context, note *model.Note) error

	// Update はノートのタイトルと本文を更新する。所有者と共有トークンは変更しない。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, note *model.Note) error

	// Delete は指定IDのノートを削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id int64) error

	// AssignShareToken は共有トークンが未設定の場合に限りtokenを設定し、
	// 実際に保存されている共有トークンを返す。
	// 同時に初回共有が行われた場合でも、全呼び出し元が同じトークンを受け取る。
	// 対象が存在しない場合はErrNotFoundを返す。
	AssignShareToken(ctx context.Context, noteID int64, token string) (string, error)
}
