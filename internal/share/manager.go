// Package share はノートの公開共有トークンの発行と解決を提供する。
//
// 共有トークンはIDトークンとは独立したランダムな不透明値で、
// 所有者認可を経由せずに単一ノートの閲覧のみを許可する。
// 発行済みトークンの変更や失効（共有解除）は提供しない。
package share

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/notekeep/internal/model"
	"github.com/hitoshi/notekeep/internal/repository"
)

// NoteStore はShareLinkManagerが必要とするノートストアの部分集合。
type NoteStore interface {
	FindByShareToken(ctx context.Context, token string) (*model.Note, error)
	AssignShareToken(ctx context.Context, noteID int64, token string) (string, error)
}

// ResolutionRecorder は共有ノート解決結果の記録インターフェース。
type ResolutionRecorder interface {
	RecordShareResolution(found bool)
}

// maxAssignAttempts は候補トークンが他ノートと衝突した場合の最大試行回数。
const maxAssignAttempts = 3

// TokenGenerator は共有トークンを生成する関数。
type TokenGenerator func() (string, error)

// NewRandomToken はcrypto/randを用いたUUIDv4を共有トークンとして生成する。
func NewRandomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	return id.String(), nil
}

// Config はManagerの設定。
type Config struct {
	// BaseURL は共有URLの公開ベースパス。末尾にトークンを連結する。
	BaseURL string
	// Generate はトークン生成関数。nilの場合はNewRandomTokenを使用する。
	Generate TokenGenerator
	// Recorder は解決結果の記録先。nilの場合は記録しない。
	Recorder ResolutionRecorder
}

// Manager は共有トークンの発行と解決を行う。
type Manager struct {
	store    NoteStore
	baseURL  string
	generate TokenGenerator
	recorder ResolutionRecorder
}

// NewManager はManagerを生成する。
func NewManager(store NoteStore, config Config) *Manager {
	generate := config.Generate
	if generate == nil {
		generate = NewRandomToken
	}
	return &Manager{
		store:    store,
		baseURL:  config.BaseURL,
		generate: generate,
		recorder: config.Recorder,
	}
}

// EnsureShareToken はノートの共有トークンを返す。未発行の場合は生成して永続化する。
// 呼び出し前に所有者認可を済ませておくこと。
// 同時に初回共有が行われた場合はストアに先に保存されたトークンを返し、note.ShareTokenに反映する。
func (m *Manager) EnsureShareToken(ctx context.Context, note *model.Note) (string, error) {
	if note.IsShared() {
		return note.ShareToken, nil
	}

	var stored string
	for attempt := 1; ; attempt++ {
		candidate, err := m.generate()
		if err != nil {
			return "", err
		}

		stored, err = m.store.AssignShareToken(ctx, note.ID, candidate)
		if errors.Is(err, repository.ErrDuplicate) && attempt < maxAssignAttempts {
			slog.Warn("share token collision, regenerating",
				slog.Int64("note_id", note.ID),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to persist share token: %w", err)
		}
		if stored != candidate {
			slog.Info("share token already assigned by concurrent request",
				slog.Int64("note_id", note.ID),
			)
		}
		break
	}

	note.ShareToken = stored
	return stored, nil
}

// ResolveSharedNote は共有トークンに完全一致するノートを返す。識別情報は不要。
// 該当がない場合はSHARED_NOTE_NOT_FOUNDを返す。
func (m *Manager) ResolveSharedNote(ctx context.Context, token string) (*model.Note, error) {
	if strings.TrimSpace(token) == "" {
		m.record(false)
		return nil, model.NewSharedNoteNotFoundError()
	}

	note, err := m.store.FindByShareToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve shared note: %w", err)
	}
	if note == nil {
		m.record(false)
		return nil, model.NewSharedNoteNotFoundError()
	}

	m.record(true)
	return note, nil
}

// URL は共有トークンから公開URLを組み立てる。
func (m *Manager) URL(token string) string {
	return m.baseURL + token
}

func (m *Manager) record(found bool) {
	if m.recorder != nil {
		m.recorder.RecordShareResolution(found)
	}
}
