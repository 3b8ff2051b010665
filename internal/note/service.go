// Package note はノートのCRUDと共有のユースケースを提供する。
//
// 所有者に限定された操作はすべてauthz.Guardを経由し、
// 共有トークンの発行と解決はshare.Managerに委譲する。
package note

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/notekeep/internal/authz"
	"github.com/hitoshi/notekeep/internal/model"
	"github.com/hitoshi/notekeep/internal/repository"
)

const (
	// maxTitleLength はタイトルの最大文字数。
	maxTitleLength = 255
	// maxContentLength は本文の最大文字数（サニタイズ後）。
	maxContentLength = 2000
)

// ContentSanitizer はノート本文のサニタイズを行うインターフェース。
type ContentSanitizer interface {
	Sanitize(html string) string
}

// UserFinder はノート作成時に所有者の存在確認を行うインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// ShareManager は共有トークンの発行と解決を行うインターフェース。
// share.Managerが実装する。
type ShareManager interface {
	EnsureShareToken(ctx context.Context, note *model.Note) (string, error)
	ResolveSharedNote(ctx context.Context, token string) (*model.Note, error)
	URL(token string) string
}

// ShareLink は共有トークンと公開URLの組。
type ShareLink struct {
	Token string
	URL   string
}

// Service はノート操作のサービス層。
// ノート不在（NOTE_NOT_FOUND）は所有者認可より先に判定する。
type Service struct {
	noteRepo  repository.NoteRepository
	users     UserFinder
	guard     *authz.Guard
	shares    ShareManager
	sanitizer ContentSanitizer
}

// NewService はServiceを生成する。
func NewService(
	noteRepo repository.NoteRepository,
	users UserFinder,
	guard *authz.Guard,
	shares ShareManager,
	sanitizer ContentSanitizer,
) *Service {
	return &Service{
		noteRepo:  noteRepo,
		users:     users,
		guard:     guard,
		shares:    shares,
		sanitizer: sanitizer,
	}
}

// Create は呼び出し元を所有者とするノートを作成する。
func (s *Service) Create(ctx context.Context, identity *model.Identity, title, content string) (*model.Note, error) {
	if identity == nil {
		return nil, model.NewUnauthenticatedError()
	}

	title, content, err := s.normalize(title, content)
	if err != nil {
		return nil, err
	}

	owner, err := s.users.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	if owner == nil {
		return nil, model.NewUserNotFoundError()
	}

	note := &model.Note{
		Title:   title,
		Content: content,
		OwnerID: owner.ID,
	}
	if err := s.noteRepo.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	slog.Info("note created",
		slog.Int64("note_id", note.ID),
		slog.Int64("user_id", note.OwnerID),
	)
	return note, nil
}

// List は呼び出し元が所有するノート一覧を返す。
// 所有者での絞り込みはストアのクエリで行う。
func (s *Service) List(ctx context.Context, identity *model.Identity) ([]*model.Note, error) {
	if identity == nil {
		return nil, model.NewUnauthenticatedError()
	}

	notes, err := s.noteRepo.FindByOwner(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// Get は所有者のみ閲覧可能なノートを返す。
func (s *Service) Get(ctx context.Context, identity *model.Identity, noteID int64) (*model.Note, error) {
	return s.authorized(ctx, identity, noteID, authz.OpRead)
}

// Update はノートのタイトルと本文を置き換える。所有者IDと共有トークンは変更しない。
func (s *Service) Update(ctx context.Context, identity *model.Identity, noteID int64, title, content string) (*model.Note, error) {
	note, err := s.authorized(ctx, identity, noteID, authz.OpUpdate)
	if err != nil {
		return nil, err
	}

	title, content, err = s.normalize(title, content)
	if err != nil {
		return nil, err
	}

	note.Title = title
	note.Content = content
	if err := s.noteRepo.Update(ctx, note); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNoteNotFoundError(noteID)
		}
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return note, nil
}

// Delete はノートを削除する。共有トークンもノートとともに失われる。
func (s *Service) Delete(ctx context.Context, identity *model.Identity, noteID int64) error {
	if _, err := s.authorized(ctx, identity, noteID, authz.OpDelete); err != nil {
		return err
	}

	if err := s.noteRepo.Delete(ctx, noteID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNoteNotFoundError(noteID)
		}
		return fmt.Errorf("failed to delete note: %w", err)
	}

	slog.Info("note deleted",
		slog.Int64("note_id", noteID),
		slog.Int64("user_id", identity.UserID),
	)
	return nil
}

// Share はノートの共有トークンを発行し、公開URLとともに返す。
// 発行済みの場合は同じトークンを返す。
func (s *Service) Share(ctx context.Context, identity *model.Identity, noteID int64) (*ShareLink, error) {
	note, err := s.authorized(ctx, identity, noteID, authz.OpShare)
	if err != nil {
		return nil, err
	}

	alreadyShared := note.IsShared()
	token, err := s.shares.EnsureShareToken(ctx, note)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNoteNotFoundError(noteID)
		}
		return nil, err
	}

	if !alreadyShared {
		slog.Info("note shared",
			slog.Int64("note_id", noteID),
			slog.Int64("user_id", identity.UserID),
		)
	}
	return &ShareLink{Token: token, URL: s.shares.URL(token)}, nil
}

// GetShared は共有トークンでノートを取得する。識別情報は不要。
func (s *Service) GetShared(ctx context.Context, token string) (*model.Note, error) {
	return s.shares.ResolveSharedNote(ctx, token)
}

// authorized はノートを取得し、opに対する所有者認可を行う。
// 判定順序: 識別情報なし(UNAUTHENTICATED) → ノート不在(NOTE_NOT_FOUND) → 所有者不一致(FORBIDDEN)
func (s *Service) authorized(ctx context.Context, identity *model.Identity, noteID int64, op authz.Operation) (*model.Note, error) {
	if identity == nil {
		return nil, model.NewUnauthenticatedError()
	}

	note, err := s.noteRepo.FindByID(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	if note == nil {
		return nil, model.NewNoteNotFoundError(noteID)
	}

	if err := s.guard.Require(identity, note, op); err != nil {
		slog.Warn("note access denied",
			slog.Int64("note_id", noteID),
			slog.Int64("user_id", identity.UserID),
			slog.String("operation", string(op)),
		)
		return nil, err
	}
	return note, nil
}

// normalize はタイトルを整形し、本文をサニタイズしたうえで長さを検証する。
func (s *Service) normalize(title, content string) (string, string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "", model.NewValidationError("タイトルが空です")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", "", model.NewValidationError(fmt.Sprintf("タイトルは%d文字以内で指定してください", maxTitleLength))
	}

	content = s.sanitizer.Sanitize(content)
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", "", model.NewValidationError(fmt.Sprintf("本文は%d文字以内で指定してください", maxContentLength))
	}
	return title, content, nil
}
