package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tafl/internal/apperr"
	"github.com/starford/tafl/internal/boardservice"
	"github.com/starford/tafl/internal/geometry"
	"github.com/starford/tafl/internal/mode"
	"github.com/starford/tafl/internal/models"
)

// maxBodySize caps request bodies; card content is text, not media.
const maxBodySize = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *boardservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *boardservice.Service) *Handler {
	return &Handler{svc: svc}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeServiceError maps the shared sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListBoards handles GET /api/boards.
func (h *Handler) ListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.svc.ListBoards(r.Context())
	if err != nil {
		writeServiceError(w, "list boards", err)
		return
	}
	if boards == nil {
		boards = []models.Board{}
	}
	writeJSON(w, http.StatusOK, BoardListResponse{Boards: boards})
}

// CreateBoard handles POST /api/boards.
func (h *Handler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	var req CreateBoardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	board, err := h.svc.CreateBoard(r.Context(), req.Title)
	if err != nil {
		writeServiceError(w, "create board", err)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

// GetBoard handles GET /api/boards/{boardID}.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.GetBoard(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		writeServiceError(w, "get board", err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// RenameBoard handles PATCH /api/boards/{boardID}.
func (h *Handler) RenameBoard(w http.ResponseWriter, r *http.Request) {
	var req RenameBoardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	if err := h.svc.RenameBoard(r.Context(), chi.URLParam(r, "boardID"), req.Title); err != nil {
		writeServiceError(w, "rename board", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBoard handles DELETE /api/boards/{boardID}.
func (h *Handler) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBoard(r.Context(), chi.URLParam(r, "boardID")); err != nil {
		writeServiceError(w, "delete board", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFrame handles GET /api/boards/{boardID}/frame.
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := h.svc.Frame(r.Context(), chi.URLParam(r, "boardID"), boardservice.FrameOptions{})
	if err != nil {
		writeServiceError(w, "get frame", err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

// CreateCard handles POST /api/boards/{boardID}/cards.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("kind is required"))
		return
	}
	params := boardservice.CardParams{
		Kind:    models.CardKind(req.Kind),
		Width:   req.Width,
		Height:  req.Height,
		Content: req.Content,
	}
	if req.X != nil && req.Y != nil {
		params.Position = &geometry.Point{X: *req.X, Y: *req.Y}
	}
	card, err := h.svc.CreateCard(r.Context(), chi.URLParam(r, "boardID"), params)
	if err != nil {
		writeServiceError(w, "create card", err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// GetCard handles GET /api/boards/{boardID}/cards/{cardID}.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.svc.GetCard(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		writeServiceError(w, "get card", err)
		return
	}
	w.Header().Set("ETag", boardservice.ContentChecksum(card.Content))
	writeJSON(w, http.StatusOK, card)
}

// DeleteCard handles DELETE /api/boards/{boardID}/cards/{cardID}.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCard(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "cardID")); err != nil {
		writeServiceError(w, "delete card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveCards handles POST /api/boards/{boardID}/cards/move.
func (h *Handler) MoveCards(w http.ResponseWriter, r *http.Request) {
	var req MoveCardsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Moves) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("moves are required"))
		return
	}
	moves := make(map[string]geometry.Point, len(req.Moves))
	for id, p := range req.Moves {
		moves[id] = geometry.Point{X: p.X, Y: p.Y}
	}
	if err := h.svc.MoveCards(r.Context(), chi.URLParam(r, "boardID"), moves); err != nil {
		writeServiceError(w, "move cards", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResizeCard handles POST /api/boards/{boardID}/cards/{cardID}/resize.
func (h *Handler) ResizeCard(w http.ResponseWriter, r *http.Request) {
	var req ResizeCardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Width <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("width must be positive"))
		return
	}
	err := h.svc.ResizeCard(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "cardID"), req.Width, req.Height)
	if err != nil {
		writeServiceError(w, "resize card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateCardContent handles PUT /api/boards/{boardID}/cards/{cardID}/content.
func (h *Handler) UpdateCardContent(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.svc.UpdateCardContent(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "cardID"),
		req.Content, r.Header.Get("If-Match"))
	if err != nil {
		writeServiceError(w, "update card content", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BringToFront handles POST /api/boards/{boardID}/order/front.
func (h *Handler) BringToFront(w http.ResponseWriter, r *http.Request) {
	h.reorder(w, r, "bring to front", h.svc.BringToFront)
}

// SendToBack handles POST /api/boards/{boardID}/order/back.
func (h *Handler) SendToBack(w http.ResponseWriter, r *http.Request) {
	h.reorder(w, r, "send to back", h.svc.SendToBack)
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, boardID string, ids []string) error) {
	var req SelectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.CardIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("card_ids are required"))
		return
	}
	if err := fn(r.Context(), chi.URLParam(r, "boardID"), req.CardIDs); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddToStack handles POST /api/boards/{boardID}/stacks/{stackID}/members.
func (h *Handler) AddToStack(w http.ResponseWriter, r *http.Request) {
	var req StackMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CardID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("card_id is required"))
		return
	}
	err := h.svc.AddToStack(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "stackID"), req.CardID, req.At)
	if err != nil {
		writeServiceError(w, "add to stack", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveWithinStack handles POST /api/boards/{boardID}/stacks/{stackID}/reorder.
func (h *Handler) MoveWithinStack(w http.ResponseWriter, r *http.Request) {
	var req StackMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CardID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("card_id is required"))
		return
	}
	err := h.svc.MoveWithinStack(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "stackID"), req.CardID, req.At)
	if err != nil {
		writeServiceError(w, "reorder stack", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unstack handles POST /api/boards/{boardID}/cards/{cardID}/unstack.
func (h *Handler) Unstack(w http.ResponseWriter, r *http.Request) {
	var req UnstackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var drop *geometry.Point
	if req.X != nil && req.Y != nil {
		drop = &geometry.Point{X: *req.X, Y: *req.Y}
	}
	err := h.svc.RemoveFromStack(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "cardID"), drop)
	if err != nil {
		writeServiceError(w, "unstack card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateConnector handles POST /api/boards/{boardID}/connectors.
func (h *Handler) CreateConnector(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params := boardservice.ConnectorParams{
		Start:     geometry.Point{X: req.Start.X, Y: req.Start.Y},
		End:       geometry.Point{X: req.End.X, Y: req.End.Y},
		Curvature: req.Curvature,
		Bias:      req.Bias,
	}
	if req.StartCardID != "" {
		params.StartAttach = &models.Attachment{CardID: req.StartCardID}
	}
	if req.EndCardID != "" {
		params.EndAttach = &models.Attachment{CardID: req.EndCardID}
	}
	conn, err := h.svc.CreateConnector(r.Context(), chi.URLParam(r, "boardID"), params)
	if err != nil {
		writeServiceError(w, "create connector", err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// DeleteConnector handles DELETE /api/boards/{boardID}/connectors/{connectorID}.
func (h *Handler) DeleteConnector(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteConnector(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "connectorID"))
	if err != nil {
		writeServiceError(w, "delete connector", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DragHandle handles POST /api/boards/{boardID}/connectors/{connectorID}/handle.
func (h *Handler) DragHandle(w http.ResponseWriter, r *http.Request) {
	var req HandleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.svc.DragConnectorHandle(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "connectorID"),
		geometry.Point{X: req.X, Y: req.Y})
	if err != nil {
		writeServiceError(w, "drag handle", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Attach handles POST /api/boards/{boardID}/connectors/{connectorID}/attach.
func (h *Handler) Attach(w http.ResponseWriter, r *http.Request) {
	var req AttachRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CardID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("card_id is required"))
		return
	}
	err := h.svc.AttachEndpoint(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "connectorID"),
		req.Start, req.CardID)
	if err != nil {
		writeServiceError(w, "attach endpoint", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Detach handles POST /api/boards/{boardID}/connectors/{connectorID}/detach.
func (h *Handler) Detach(w http.ResponseWriter, r *http.Request) {
	var req DetachRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.svc.DetachEndpoint(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "connectorID"),
		req.Start, geometry.Point{X: req.X, Y: req.Y})
	if err != nil {
		writeServiceError(w, "detach endpoint", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetNodes handles PUT /api/boards/{boardID}/connectors/{connectorID}/nodes.
func (h *Handler) SetNodes(w http.ResponseWriter, r *http.Request) {
	var req NodesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.svc.SetConnectorNodes(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "connectorID"), req.Nodes)
	if err != nil {
		writeServiceError(w, "set nodes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Undo handles POST /api/boards/{boardID}/undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Undo(r.Context(), chi.URLParam(r, "boardID")); err != nil {
		writeServiceError(w, "undo", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Redo handles POST /api/boards/{boardID}/redo.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Redo(r.Context(), chi.URLParam(r, "boardID")); err != nil {
		writeServiceError(w, "redo", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectionHits handles GET /api/boards/{boardID}/selection.
func (h *Handler) SelectionHits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	width, errW := strconv.ParseFloat(q.Get("w"), 64)
	height, errH := strconv.ParseFloat(q.Get("h"), 64)
	if errX != nil || errY != nil || errW != nil || errH != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("x, y, w, h query parameters are required"))
		return
	}
	sel := geometry.Rect{X: x, Y: y, W: width, H: height}
	cardIDs, connIDs, err := h.svc.SelectionHits(r.Context(), chi.URLParam(r, "boardID"), sel)
	if err != nil {
		writeServiceError(w, "selection hits", err)
		return
	}
	if cardIDs == nil {
		cardIDs = []string{}
	}
	if connIDs == nil {
		connIDs = []string{}
	}
	writeJSON(w, http.StatusOK, SelectionHitsResponse{CardIDs: cardIDs, ConnectorIDs: connIDs})
}

// StartGesture handles POST /api/boards/{boardID}/gesture.
func (h *Handler) StartGesture(w http.ResponseWriter, r *http.Request) {
	var req GestureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	boardID := chi.URLParam(r, "boardID")

	var m mode.Mode
	switch req.Kind {
	case "selecting":
		m = mode.NewSelecting(geometry.Point{X: req.X, Y: req.Y})
	case "dragging":
		m = mode.NewDragging(req.CardIDs)
	case "resizing":
		m = mode.NewResizing(req.CardID, mode.ResizeHandle(req.Handle))
	case "connecting":
		m = mode.NewConnecting(req.FromCardID)
	case "panning":
		m = mode.NewPanning()
	case "editing":
		if err := h.svc.BeginEdit(r.Context(), boardID, req.CardID); err != nil {
			writeServiceError(w, "begin edit", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unknown gesture kind"))
		return
	}

	if err := h.svc.StartGesture(boardID, m); err != nil {
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelGesture handles DELETE /api/boards/{boardID}/gesture.
func (h *Handler) CancelGesture(w http.ResponseWriter, r *http.Request) {
	h.svc.CancelGesture(chi.URLParam(r, "boardID"))
	w.WriteHeader(http.StatusNoContent)
}

// CommitEdit handles PUT /api/boards/{boardID}/edit.
func (h *Handler) CommitEdit(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.CommitEdit(r.Context(), chi.URLParam(r, "boardID"), req.Content); err != nil {
		writeServiceError(w, "commit edit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	boardID := r.URL.Query().Get("board")

	hits, err := h.svc.Search(r.Context(), boardID, q, limit)
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{CardID: hit.CardID, BoardID: hit.BoardID, Snippet: hit.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
