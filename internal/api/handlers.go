package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/starford/cardsync/internal/cardservice"
	"github.com/starford/cardsync/internal/cardsync"
	"github.com/starford/cardsync/internal/models"
)

// maxBody caps request bodies; previews carry whole documents.
const maxBody = 10 << 20

// Notifier receives send outcomes for live clients. *sse.Broker implements it.
type Notifier interface {
	PublishSent(d models.SendDiff)
	PublishRemoved(d models.SendDiff)
	PublishFailed(documentID string, err error)
}

// Handler holds API route handlers.
type Handler struct {
	svc      *cardservice.Service
	notify   Notifier
	validate *validator.Validate
}

// NewHandler creates a new Handler. notify may be nil.
func NewHandler(svc *cardservice.Service, notify Notifier) *Handler {
	return &Handler{
		svc:      svc,
		notify:   notify,
		validate: validator.New(),
	}
}

// documentPath extracts the document path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. spanish%2Fverbs.md).
func documentPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// decode reads a JSON body into v and validates it. It writes the 400
// response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

func (h *Handler) publishBatch(r cardsync.BatchResult) {
	if h.notify == nil {
		return
	}
	for _, d := range r.Diffs {
		if d.Deck == "" && d.Total() == 0 {
			h.notify.PublishRemoved(d)
			continue
		}
		h.notify.PublishSent(d)
	}
	for _, f := range r.Failures {
		h.notify.PublishFailed(f.DocumentID, f.Err)
	}
}

// Preview handles POST /api/preview.
//
//	@Summary		Compile a document into cards without sending them
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PreviewRequest	true	"Document to compile"
//	@Success		200		{object}	Preview
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	var content []byte
	if req.Content != nil {
		content = []byte(*req.Content)
	}
	p, err := h.svc.Preview(r.Context(), req.DocumentID, content)
	if err != nil {
		writeError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Send handles POST /api/send.
//
//	@Summary		Send one vault document to its deck
//	@Tags			send
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SendRequest	true	"Document to send"
//	@Success		200		{object}	SendResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/send [post]
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.svc.SendPath(r.Context(), req.Path)
	if err != nil {
		if h.notify != nil {
			h.notify.PublishFailed(req.Path, err)
		}
		writeError(w, "send", err)
		return
	}
	if h.notify != nil {
		h.notify.PublishSent(d)
	}
	slog.Debug("api: sent", slog.String("path", req.Path), slog.String("summary", d.Summary().String()))
	writeJSON(w, http.StatusOK, newSendResponse(d))
}

// SendBatch handles POST /api/send/batch.
//
//	@Summary		Send several vault documents in order
//	@Tags			send
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BatchSendRequest	true	"Documents to send"
//	@Success		200		{object}	BatchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/send/batch [post]
func (h *Handler) SendBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchSendRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.svc.SendPaths(r.Context(), req.Paths, req.Force)
	h.publishBatch(res)
	writeJSON(w, http.StatusOK, newBatchResponse(res))
}

// Sync handles POST /api/sync.
//
//	@Summary		Send every changed vault document and forget deleted ones
//	@Tags			send
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SyncRequest	false	"Sync options"
//	@Success		200		{object}	BatchResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}
	res, err := h.svc.SyncVault(r.Context(), req.Force)
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	h.publishBatch(res)
	writeJSON(w, http.StatusOK, newBatchResponse(res))
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List vault documents with their send state
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentsResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Documents(r.Context())
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Documents: docs})
}

// Cards handles GET /api/cards/*.
//
//	@Summary		List the cards last sent for a document
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	CardsResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{path} [get]
func (h *Handler) Cards(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	cards, err := h.svc.Cards(r.Context(), path)
	if err != nil {
		writeError(w, "list cards", err)
		return
	}
	writeJSON(w, http.StatusOK, CardsResponse{DocumentID: path, Cards: cards})
}

// Search handles GET /api/search.
//
//	@Summary		Search sent cards
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
