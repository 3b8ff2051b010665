package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/notekeep/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したノートリポジトリ。
// notes.share_tokenにはUNIQUE制約があり、共有トークンの一意性はDB側でも保証される。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

const noteColumns = `id, title, content, owner_id, share_token, created_at, updated_at`

// FindByID は指定IDのノートを取得する。見つからない場合はnilを返す。
func (r *PostgresNoteRepo) FindByID(ctx context.Context, id int64) (*model.Note, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1`,
		id,
	)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note by ID: %w", err)
	}
	return note, nil
}

// FindByOwner は所有者IDに紐づくノート一覧をID昇順で返す。
func (r *PostgresNoteRepo) FindByOwner(ctx context.Context, ownerID int64) ([]*model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE owner_id = $1 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes by owner: %w", err)
	}
	defer rows.Close()

	notes := make([]*model.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// FindByShareToken は共有トークンでノートを検索する。見つからない場合はnilを返す。
func (r *PostgresNoteRepo) FindByShareToken(ctx context.Context, token string) (*model.Note, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE share_token = $1`,
		token,
	)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note by share token: %w", err)
	}
	return note, nil
}

// Create はノートを作成し、採番されたIDとタイムスタンプを設定する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notes (title, content, owner_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		note.Title, note.Content, note.OwnerID,
	).Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// Update はノートのタイトルと本文を更新する。
func (r *PostgresNoteRepo) Update(ctx context.Context, note *model.Note) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE notes SET title = $2, content = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		note.ID, note.Title, note.Content,
	).Scan(&note.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to update note %d: %w", note.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	return nil
}

// Delete は指定IDのノートを削除する。
func (r *PostgresNoteRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("failed to delete note %d: %w", id, ErrNotFound)
	}
	return nil
}

// AssignShareToken は共有トークンが未設定の場合に限りtokenを設定し、保存済みの共有トークンを返す。
// 条件付きUPDATEが0行の場合は他のリクエストが先に設定したとみなし、別ステートメントで再読込する。
func (r *PostgresNoteRepo) AssignShareToken(ctx context.Context, noteID int64, token string) (string, error) {
	var stored string
	err := r.db.QueryRowContext(ctx,
		`UPDATE notes SET share_token = $2, updated_at = now()
		 WHERE id = $1 AND share_token IS NULL
		 RETURNING share_token`,
		noteID, token,
	).Scan(&stored)
	if err == nil {
		return stored, nil
	}
	if isUniqueViolation(err) {
		return "", fmt.Errorf("failed to assign share token: %w", ErrDuplicate)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to assign share token: %w", err)
	}

	var existing sql.NullString
	err = r.db.QueryRowContext(ctx,
		`SELECT share_token FROM notes WHERE id = $1`,
		noteID,
	).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to assign share token to note %d: %w", noteID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read share token: %w", err)
	}
	return existing.String, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanNote は1行分のノートをスキャンする。share_tokenのNULLは空文字列として扱う。
func scanNote(s rowScanner) (*model.Note, error) {
	note := &model.Note{}
	var shareToken sql.NullString
	if err := s.Scan(
		&note.ID, &note.Title, &note.Content, &note.OwnerID,
		&shareToken, &note.CreatedAt, &note.UpdatedAt,
	); err != nil {
		return nil, err
	}
	note.ShareToken = shareToken.String
	return note, nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
