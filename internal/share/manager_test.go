package share

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/notekeep/internal/model"
	"github.com/hitoshi/notekeep/internal/repository"
)

type mockResolutionRecorder struct {
	mu       sync.Mutex
	found    int
	notFound int
}

func (m *mockResolutionRecorder) RecordShareResolution(found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if found {
		m.found++
	} else {
		m.notFound++
	}
}

func isNotFound(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeSharedNoteNotFound
}

func createNote(t *testing.T, repo *repository.MemoryNoteRepo, title string) *model.Note {
	t.Helper()
	note := &model.Note{Title: title, OwnerID: 1}
	require.NoError(t, repo.Create(context.Background(), note))
	return note
}

func TestNewRandomToken(t *testing.T) {
	a, err := NewRandomToken()
	require.NoError(t, err)
	b, err := NewRandomToken()
	require.NoError(t, err)

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestEnsureShareToken_Idempotent(t *testing.T) {
	repo := repository.NewMemoryNoteRepo()
	m := NewManager(repo, Config{BaseURL: "https://notes.example/share/"})
	note := createNote(t, repo, "n")

	first, err := m.EnsureShareToken(context.Background(), note)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Equal(t, first, note.ShareToken)

	// 再取得した値でも同じトークンが返る
	reloaded, err := repo.FindByID(context.Background(), note.ID)
	require.NoError(t, err)
	second, err := m.EnsureShareToken(context.Background(), reloaded)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnsureShareToken_DistinctAcrossNotes(t *testing.T) {
	repo := repository.NewMemoryNoteRepo()
	m := NewManager(repo, Config{})
	ctx := context.Background()

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		note := &model.Note{Title: "n", OwnerID: 1}
		require.NoError(t, repo.Create(ctx, note))

		tok, err := m.EnsureShareToken(ctx, note)
		require.NoError(t, err)
		_, dup := seen[tok]
		require.False(t, dup, "token collision at note %d", i)
		seen[tok] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestEnsureShareToken_ConcurrentFirstShare(t *testing.T) {
	repo := repository.NewMemoryNoteRepo()
	m := NewManager(repo, Config{})
	note := createNote(t, repo, "race")

	const workers = 16
	tokens := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// 各リクエストは独立に読み込んだ未共有のノートを持つ
			copyOfNote := *note
			tok, err := m.EnsureShareToken(context.Background(), &copyOfNote)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	for i := range tokens {
		assert.Equal(t, tokens[0], tokens[i])
	}

	resolved, err := m.ResolveSharedNote(context.Background(), tokens[0])
	require.NoError(t, err)
	assert.Equal(t, note.ID, resolved.ID)
}

func TestEnsureShareToken_RetriesOnCollision(t *testing.T) {
	repo := repository.NewMemoryNoteRepo()
	ctx := context.Background()
	taken := createNote(t, repo, "taken")
	_, err := repo.AssignShareToken(ctx, taken.ID, "fixed")
	require.NoError(t, err)

	candidates := []string{"fixed", "fresh"}
	calls := 0
	m := NewManager(repo, Config{Generate: func() (string, error) {
		tok := candidates[calls]
		calls++
		return tok, nil
	}})

	note := createNote(t, repo, "new")
	tok, err := m.EnsureShareToken(ctx, note)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, 2, calls)
}

func TestEnsureShareToken_GivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := repository.NewMemoryNoteRepo()
	ctx := context.Background()
	taken := createNote(t, repo, "taken")
	_, err := repo.AssignShareToken(ctx, taken.ID, "fixed")
	require.NoError(t, err)

	m := NewManager(repo, Config{Generate: func() (string, error) { return "fixed", nil }})
	note := createNote(t, repo, "new")

	_, err = m.EnsureShareToken(ctx, note)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.False(t, note.IsShared())
}

func TestEnsureShareToken_GeneratorError(t *testing.T) {
	repo := repository.NewMemoryNoteRepo()
	m := NewManager(repo, Config{Generate: func() (string, error) {
		return "", errors.New("entropy exhausted")
	}})
	note := createNote(t, repo, "n")

	_, err := m.EnsureShareToken(context.Background(), note)
	require.Error(t, err)
	assert.False(t, note.IsShared())
}

func TestResolveSharedNote(t *testing.T) {
	repo := repository.NewMemoryNoteRepo()
	rec := &mockResolutionRecorder{}
	m := NewManager(repo, Config{Recorder: rec})
	ctx := context.Background()

	note := createNote(t, repo, "shared")
	tok, err := m.EnsureShareToken(ctx, note)
	require.NoError(t, err)

	got, err := m.ResolveSharedNote(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, note.ID, got.ID)
	assert.Equal(t, "shared", got.Title)

	for _, bad := range []string{"", "   ", "unknown", tok + "x"} {
		t.Run(fmt.Sprintf("未登録トークン_%q", bad), func(t *testing.T) {
			_, err := m.ResolveSharedNote(ctx, bad)
			assert.True(t, isNotFound(err), "expected SHARED_NOTE_NOT_FOUND, got %v", err)
		})
	}

	assert.Equal(t, 1, rec.found)
	assert.Equal(t, 4, rec.notFound)
}

func TestResolveSharedNote_UnsharedNoteNotReachable(t *testing.T) {
	repo := repository.NewMemoryNoteRepo()
	m := NewManager(repo, Config{})
	createNote(t, repo, "private")

	_, err := m.ResolveSharedNote(context.Background(), "")
	assert.True(t, isNotFound(err))
}

type failingStore struct {
	NoteStore
}

func (failingStore) FindByShareToken(ctx context.Context, token string) (*model.Note, error) {
	return nil, errors.New("db down")
}

func TestResolveSharedNote_StoreError(t *testing.T) {
	m := NewManager(failingStore{}, Config{})

	_, err := m.ResolveSharedNote(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, isNotFound(err))
}

func TestURL(t *testing.T) {
	m := NewManager(repository.NewMemoryNoteRepo(), Config{BaseURL: "https://notes.example/share/"})
	assert.Equal(t, "https://notes.example/share/abc", m.URL("abc"))
}
