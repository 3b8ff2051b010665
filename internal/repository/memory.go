package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/notekeep/internal/model"
)

// MemoryUserRepo はインメモリのユーザーリポジトリ。
// ローカル実行（STORAGE_DRIVER=memory）とテストで使用する。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]model.User
	byEmail map[string]int64
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[int64]model.User),
		byEmail: make(map[string]int64),
	}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	u := r.byID[id]
	return &u, nil
}

// Create はユーザーを作成し、採番されたIDを設定する。
func (r *MemoryUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
	}

	r.nextID++
	user.ID = r.nextID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	r.byID[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

// MemoryNoteRepo はインメモリのノートリポジトリ。
// share_tokenの一意性と条件付き設定をミューテックスで保証する。
type MemoryNoteRepo struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]model.Note
	byToken map[string]int64
}

// NewMemoryNoteRepo はMemoryNoteRepoを生成する。
func NewMemoryNoteRepo() *MemoryNoteRepo {
	return &MemoryNoteRepo{
		byID:    make(map[int64]model.Note),
		byToken: make(map[string]int64),
	}
}

// FindByID は指定IDのノートを取得する。見つからない場合はnilを返す。
func (r *MemoryNoteRepo) FindByID(ctx context.Context, id int64) (*model.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

// FindByOwner は所有者IDに紐づくノート一覧をID昇順で返す。
func (r *MemoryNoteRepo) FindByOwner(ctx context.Context, ownerID int64) ([]*model.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	notes := make([]*model.Note, 0)
	for _, n := range r.byID {
		if n.OwnerID == ownerID {
			n := n
			notes = append(notes, &n)
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	return notes, nil
}

// FindByShareToken は共有トークンでノートを検索する。見つからない場合はnilを返す。
func (r *MemoryNoteRepo) FindByShareToken(ctx context.Context, token string) (*model.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok {
		return nil, nil
	}
	n := r.byID[id]
	return &n, nil
}

// Create はノートを作成し、採番されたIDとタイムスタンプを設定する。
func (r *MemoryNoteRepo) Create(ctx context.Context, note *model.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now()
	note.ID = r.nextID
	note.ShareToken = ""
	note.CreatedAt = now
	note.UpdatedAt = now
	r.byID[note.ID] = *note
	return nil
}

// Update はノートのタイトルと本文を更新する。
func (r *MemoryNoteRepo) Update(ctx context.Context, note *model.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[note.ID]
	if !ok {
		return fmt.Errorf("failed to update note %d: %w", note.ID, ErrNotFound)
	}
	stored.Title = note.Title
	stored.Content = note.Content
	stored.UpdatedAt = time.Now()
	r.byID[note.ID] = stored
	note.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete は指定IDのノートを削除する。
func (r *MemoryNoteRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("failed to delete note %d: %w", id, ErrNotFound)
	}
	if stored.ShareToken != "" {
		delete(r.byToken, stored.ShareToken)
	}
	delete(r.byID, id)
	return nil
}

// AssignShareToken は共有トークンが未設定の場合に限りtokenを設定し、保存済みの共有トークンを返す。
func (r *MemoryNoteRepo) AssignShareToken(ctx context.Context, noteID int64, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[noteID]
	if !ok {
		return "", fmt.Errorf("failed to assign share token to note %d: %w", noteID, ErrNotFound)
	}
	if stored.ShareToken != "" {
		return stored.ShareToken, nil
	}
	if _, taken := r.byToken[token]; taken {
		return "", fmt.Errorf("failed to assign share token: %w", ErrDuplicate)
	}

	stored.ShareToken = token
	stored.UpdatedAt = time.Now()
	r.byID[noteID] = stored
	r.byToken[token] = noteID
	return token, nil
}

// compile-time interface checks
var _ UserRepository = (*MemoryUserRepo)(nil)
var _ NoteRepository = (*MemoryNoteRepo)(nil)
