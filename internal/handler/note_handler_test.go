package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/notekeep/internal/middleware"
	"github.com/hitoshi/notekeep/internal/model"
	"github.com/hitoshi/notekeep/internal/note"
)

// --- モック定義 ---

// mockNoteService はNoteServiceInterfaceのモック実装。
type mockNoteService struct {
	createFn    func(ctx context.Context, identity *model.Identity, title, content string) (*model.Note, error)
	listFn      func(ctx context.Context, identity *model.Identity) ([]*model.Note, error)
	getFn       func(ctx context.Context, identity *model.Identity, noteID int64) (*model.Note, error)
	updateFn    func(ctx context.Context, identity *model.Identity, noteID int64, title, content string) (*model.Note, error)
	deleteFn    func(ctx context.Context, identity *model.Identity, noteID int64) error
	shareFn     func(ctx context.Context, identity *model.Identity, noteID int64) (*note.ShareLink, error)
	getSharedFn func(ctx context.Context, token string) (*model.Note, error)
}

func (m *mockNoteService) Create(ctx context.Context, identity *model.Identity, title, content string) (*model.Note, error) {
	if m.createFn != nil {
		return m.createFn(ctx, identity, title, content)
	}
	return nil, nil
}

func (m *mockNoteService) List(ctx context.Context, identity *model.Identity) ([]*model.Note, error) {
	if m.listFn != nil {
		return m.listFn(ctx, identity)
	}
	return nil, nil
}

func (m *mockNoteService) Get(ctx context.Context, identity *model.Identity, noteID int64) (*model.Note, error) {
	if m.getFn != nil {
		return m.getFn(ctx, identity, noteID)
	}
	return nil, nil
}

func (m *mockNoteService) Update(ctx context.Context, identity *model.Identity, noteID int64, title, content string) (*model.Note, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, identity, noteID, title, content)
	}
	return nil, nil
}

func (m *mockNoteService) Delete(ctx context.Context, identity *model.Identity, noteID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, identity, noteID)
	}
	return nil
}

func (m *mockNoteService) Share(ctx context.Context, identity *model.Identity, noteID int64) (*note.ShareLink, error) {
	if m.shareFn != nil {
		return m.shareFn(ctx, identity, noteID)
	}
	return nil, nil
}

func (m *mockNoteService) GetShared(ctx context.Context, token string) (*model.Note, error) {
	if m.getSharedFn != nil {
		return m.getSharedFn(ctx, token)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withIdentity はテスト用にリクエストコンテキストに識別情報を注入するヘルパー。
func withIdentity(r *http.Request, userID int64) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), &model.Identity{UserID: userID})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- POST /api/notes テスト ---

func TestNoteHandler_CreateNote_Success(t *testing.T) {
	svc := &mockNoteService{
		createFn: func(ctx context.Context, identity *model.Identity, title, content string) (*model.Note, error) {
			if identity.UserID != 42 {
				t.Errorf("UserID = %d, want 42", identity.UserID)
			}
			if title != "買い物" || content != "<p>牛乳</p>" {
				t.Errorf("title=%q content=%q", title, content)
			}
			return &model.Note{ID: 1, Title: title, Content: content, OwnerID: 42}, nil
		},
	}

	h := NewNoteHandler(svc)

	body := `{"title": "買い物", "content": "<p>牛乳</p>"}`
	req := httptest.NewRequest(http.MethodPost, "/api/notes", bytes.NewBufferString(body))
	req = withIdentity(req, 42)
	w := httptest.NewRecorder()

	h.CreateNote(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var got noteResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got.ID != 1 || got.Title != "買い物" {
		t.Errorf("response = %+v", got)
	}
}

func TestNoteHandler_CreateNote_Anonymous_Returns401(t *testing.T) {
	svc := &mockNoteService{
		createFn: func(ctx context.Context, identity *model.Identity, title, content string) (*model.Note, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	h := NewNoteHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/notes", bytes.NewBufferString(`{"title":"x"}`))
	w := httptest.NewRecorder()

	h.CreateNote(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := parseAPIErrorResponse(t, w)["code"]; code != model.ErrCodeUnauthenticated {
		t.Errorf("code = %q, want %q", code, model.ErrCodeUnauthenticated)
	}
}

func TestNoteHandler_CreateNote_InvalidJSON_Returns400(t *testing.T) {
	h := NewNoteHandler(&mockNoteService{})

	req := httptest.NewRequest(http.MethodPost, "/api/notes", bytes.NewBufferString(`{invalid`))
	req = withIdentity(req, 42)
	w := httptest.NewRecorder()

	h.CreateNote(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := parseAPIErrorResponse(t, w)["code"]; code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidRequest)
	}
}

// --- GET /api/notes テスト ---

func TestNoteHandler_ListNotes_ReturnsArray(t *testing.T) {
	svc := &mockNoteService{
		listFn: func(ctx context.Context, identity *model.Identity) ([]*model.Note, error) {
			return []*model.Note{
				{ID: 1, Title: "a", OwnerID: identity.UserID},
				{ID: 2, Title: "b", OwnerID: identity.UserID, ShareToken: "tok"},
			}, nil
		},
	}

	h := NewNoteHandler(svc)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/notes", nil), 42)
	w := httptest.NewRecorder()

	h.ListNotes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got []noteResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].ShareToken != "tok" {
		t.Errorf("share_token = %q, want %q", got[1].ShareToken, "tok")
	}
}

func TestNoteHandler_ListNotes_Empty_ReturnsEmptyArray(t *testing.T) {
	svc := &mockNoteService{
		listFn: func(ctx context.Context, identity *model.Identity) ([]*model.Note, error) {
			return []*model.Note{}, nil
		},
	}

	h := NewNoteHandler(svc)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/notes", nil), 42)
	w := httptest.NewRecorder()

	h.ListNotes(w, req)

	if body := bytes.TrimSpace(w.Body.Bytes()); string(body) != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

// --- GET /api/notes/{id} テスト ---

func TestNoteHandler_GetNote_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"所有者以外", model.NewForbiddenError("read"), http.StatusForbidden, model.ErrCodeForbidden},
		{"ノート不在", model.NewNoteNotFoundError(7), http.StatusNotFound, model.ErrCodeNoteNotFound},
		{"識別情報なし", model.NewUnauthenticatedError(), http.StatusUnauthorized, model.ErrCodeUnauthenticated},
		{"ストア障害", errors.New("connection refused"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockNoteService{
				getFn: func(ctx context.Context, identity *model.Identity, noteID int64) (*model.Note, error) {
					return nil, tt.err
				},
			}

			h := NewNoteHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/notes/7", nil)
			req = withIdentity(withChiURLParam(req, "id", "7"), 43)
			w := httptest.NewRecorder()

			h.GetNote(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			errResp := parseAPIErrorResponse(t, w)
			if errResp["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", errResp["code"], tt.wantCode)
			}
			if tt.wantCode == model.ErrCodeInternal && errResp["message"] == "connection refused" {
				t.Error("internal error detail should not leak to the response")
			}
		})
	}
}

func TestNoteHandler_GetNote_InvalidID_Returns400(t *testing.T) {
	for _, id := range []string{"abc", "0", "-1"} {
		svc := &mockNoteService{
			getFn: func(ctx context.Context, identity *model.Identity, noteID int64) (*model.Note, error) {
				t.Fatal("service should not be called")
				return nil, nil
			},
		}

		h := NewNoteHandler(svc)

		req := httptest.NewRequest(http.MethodGet, "/api/notes/"+id, nil)
		req = withIdentity(withChiURLParam(req, "id", id), 42)
		w := httptest.NewRecorder()

		h.GetNote(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("id=%q: status = %d, want %d", id, w.Code, http.StatusBadRequest)
		}
		if code := parseAPIErrorResponse(t, w)["code"]; code != model.ErrCodeInvalidRequest {
			t.Errorf("id=%q: code = %q, want %q", id, code, model.ErrCodeInvalidRequest)
		}
	}
}

// --- PUT /api/notes/{id} テスト ---

func TestNoteHandler_UpdateNote_Success(t *testing.T) {
	svc := &mockNoteService{
		updateFn: func(ctx context.Context, identity *model.Identity, noteID int64, title, content string) (*model.Note, error) {
			if noteID != 5 {
				t.Errorf("noteID = %d, want 5", noteID)
			}
			return &model.Note{ID: noteID, Title: title, Content: content, OwnerID: identity.UserID}, nil
		},
	}

	h := NewNoteHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/notes/5", bytes.NewBufferString(`{"title":"new","content":"c"}`))
	req = withIdentity(withChiURLParam(req, "id", "5"), 42)
	w := httptest.NewRecorder()

	h.UpdateNote(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got noteResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got.Title != "new" {
		t.Errorf("title = %q, want %q", got.Title, "new")
	}
}

// --- DELETE /api/notes/{id} テスト ---

func TestNoteHandler_DeleteNote_ReturnsDeletedMessage(t *testing.T) {
	deleted := false
	svc := &mockNoteService{
		deleteFn: func(ctx context.Context, identity *model.Identity, noteID int64) error {
			deleted = noteID == 9
			return nil
		},
	}

	h := NewNoteHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/notes/9", nil)
	req = withIdentity(withChiURLParam(req, "id", "9"), 42)
	w := httptest.NewRecorder()

	h.DeleteNote(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !deleted {
		t.Error("expected service Delete to be called with note 9")
	}
	var got messageResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got.Message != "Deleted" {
		t.Errorf("message = %q, want %q", got.Message, "Deleted")
	}
}

// --- POST /api/notes/{id}/share テスト ---

func TestNoteHandler_ShareNote_ReturnsTokenAndURL(t *testing.T) {
	svc := &mockNoteService{
		shareFn: func(ctx context.Context, identity *model.Identity, noteID int64) (*note.ShareLink, error) {
			return &note.ShareLink{Token: "abc", URL: "https://notes.example.com/share/abc"}, nil
		},
	}

	h := NewNoteHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/notes/3/share", nil)
	req = withIdentity(withChiURLParam(req, "id", "3"), 42)
	w := httptest.NewRecorder()

	h.ShareNote(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got shareResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got.ShareToken != "abc" || got.ShareURL != "https://notes.example.com/share/abc" {
		t.Errorf("response = %+v", got)
	}
}

// --- GET /api/share/{token} テスト ---

func TestNoteHandler_GetSharedNote_NoIdentityRequired(t *testing.T) {
	svc := &mockNoteService{
		getSharedFn: func(ctx context.Context, token string) (*model.Note, error) {
			if token != "abc" {
				return nil, model.NewSharedNoteNotFoundError()
			}
			return &model.Note{ID: 3, Title: "公開", Content: "本文", OwnerID: 42, ShareToken: "abc"}, nil
		},
	}

	h := NewNoteHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/share/abc", nil)
	req = withChiURLParam(req, "token", "abc")
	w := httptest.NewRecorder()

	h.GetSharedNote(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if raw["content"] != "本文" {
		t.Errorf("content = %v, want 本文", raw["content"])
	}
	for _, hidden := range []string{"owner_id", "share_token"} {
		if _, ok := raw[hidden]; ok {
			t.Errorf("shared view should not expose %s", hidden)
		}
	}
}

func TestNoteHandler_GetSharedNote_Unknown_Returns404(t *testing.T) {
	svc := &mockNoteService{
		getSharedFn: func(ctx context.Context, token string) (*model.Note, error) {
			return nil, model.NewSharedNoteNotFoundError()
		},
	}

	h := NewNoteHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/share/nope", nil)
	req = withChiURLParam(req, "token", "nope")
	w := httptest.NewRecorder()

	h.GetSharedNote(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if code := parseAPIErrorResponse(t, w)["code"]; code != model.ErrCodeSharedNoteNotFound {
		t.Errorf("code = %q, want %q", code, model.ErrCodeSharedNoteNotFound)
	}
}
