package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/notekeep/internal/middleware"
	"github.com/hitoshi/notekeep/internal/model"
	"github.com/hitoshi/notekeep/internal/note"
)

// NoteServiceInterface はノートハンドラーが必要とするサービスインターフェース。
type NoteServiceInterface interface {
	Create(ctx context.Context, identity *model.Identity, title, content string) (*model.Note, error)
	List(ctx context.Context, identity *model.Identity) ([]*model.Note, error)
	Get(ctx context.Context, identity *model.Identity, noteID int64) (*model.Note, error)
	Update(ctx context.Context, identity *model.Identity, noteID int64, title, content string) (*model.Note, error)
	Delete(ctx context.Context, identity *model.Identity, noteID int64) error
	Share(ctx context.Context, identity *model.Identity, noteID int64) (*note.ShareLink, error)
	GetShared(ctx context.Context, token string) (*model.Note, error)
}

// NoteHandler はノート管理と共有のHTTPハンドラー。
type NoteHandler struct {
	service NoteServiceInterface
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface) *NoteHandler {
	return &NoteHandler{service: service}
}

// noteRequest はノート作成・更新リクエストのボディ。
type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// noteResponse は所有者向けのノート情報。
type noteResponse struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	ShareToken string    `json:"share_token,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// sharedNoteResponse は共有リンク経由の閲覧者向けのノート情報。
// 所有者と共有トークンは含めない。
type sharedNoteResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

type shareResponse struct {
	ShareToken string `json:"share_token"`
	ShareURL   string `json:"share_url"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// CreateNote はノートを作成する。
// POST /api/notes
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), identity, req.Title, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toNoteResponse(created))
}

// ListNotes は呼び出し元のノート一覧を返す。
// GET /api/notes
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	notes, err := h.service.List(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]noteResponse, len(notes))
	for i, n := range notes {
		results[i] = toNoteResponse(n)
	}
	writeJSON(w, http.StatusOK, results)
}

// GetNote はノートを取得する。
// GET /api/notes/{id}
func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	noteID, ok := parseNoteID(w, r)
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), identity, noteID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNoteResponse(found))
}

// UpdateNote はノートのタイトルと本文を更新する。
// PUT /api/notes/{id}
func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	noteID, ok := parseNoteID(w, r)
	if !ok {
		return
	}

	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.Update(r.Context(), identity, noteID, req.Title, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toNoteResponse(updated))
}

// DeleteNote はノートを削除する。
// DELETE /api/notes/{id}
func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	noteID, ok := parseNoteID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity, noteID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Deleted"})
}

// ShareNote はノートの共有トークンを発行し、共有URLを返す。
// POST /api/notes/{id}/share
func (h *NoteHandler) ShareNote(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	noteID, ok := parseNoteID(w, r)
	if !ok {
		return
	}

	link, err := h.service.Share(r.Context(), identity, noteID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, shareResponse{
		ShareToken: link.Token,
		ShareURL:   link.URL,
	})
}

// GetSharedNote は共有トークンでノートを取得する。認証不要。
// GET /api/share/{token}
func (h *NoteHandler) GetSharedNote(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	shared, err := h.service.GetShared(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sharedNoteResponse{
		ID:        shared.ID,
		Title:     shared.Title,
		Content:   shared.Content,
		UpdatedAt: shared.UpdatedAt,
	})
}

// parseNoteID はURLパラメータのノートIDを解析する。
// 正の整数でない場合は400 INVALID_REQUESTを書き込み、falseを返す。
func parseNoteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	noteID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || noteID <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidNoteIDError())
		return 0, false
	}
	return noteID, true
}

func toNoteResponse(n *model.Note) noteResponse {
	return noteResponse{
		ID:         n.ID,
		Title:      n.Title,
		Content:    n.Content,
		ShareToken: n.ShareToken,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}
