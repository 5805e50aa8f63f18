package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tafl/internal/boardservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *boardservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Boards CRUD.
	r.Get("/boards", h.ListBoards)
	r.Post("/boards", h.CreateBoard)

	r.Route("/boards/{boardID}", func(r chi.Router) {
		r.Get("/", h.GetBoard)
		r.Patch("/", h.RenameBoard)
		r.Delete("/", h.DeleteBoard)

		// Render frame and rubber-band selection.
		r.Get("/frame", h.GetFrame)
		r.Get("/selection", h.SelectionHits)

		// Cards.
		r.Post("/cards", h.CreateCard)
		r.Post("/cards/move", h.MoveCards)
		r.Get("/cards/{cardID}", h.GetCard)
		r.Delete("/cards/{cardID}", h.DeleteCard)
		r.Post("/cards/{cardID}/resize", h.ResizeCard)
		r.Put("/cards/{cardID}/content", h.UpdateCardContent)
		r.Post("/cards/{cardID}/unstack", h.Unstack)

		// Layer order.
		r.Post("/order/front", h.BringToFront)
		r.Post("/order/back", h.SendToBack)

		// Stacks.
		r.Post("/stacks/{stackID}/members", h.AddToStack)
		r.Post("/stacks/{stackID}/reorder", h.MoveWithinStack)

		// Connectors.
		r.Post("/connectors", h.CreateConnector)
		r.Delete("/connectors/{connectorID}", h.DeleteConnector)
		r.Post("/connectors/{connectorID}/handle", h.DragHandle)
		r.Post("/connectors/{connectorID}/attach", h.Attach)
		r.Post("/connectors/{connectorID}/detach", h.Detach)
		r.Put("/connectors/{connectorID}/nodes", h.SetNodes)

		// History.
		r.Post("/undo", h.Undo)
		r.Post("/redo", h.Redo)

		// Interaction gestures.
		r.Post("/gesture", h.StartGesture)
		r.Delete("/gesture", h.CancelGesture)
		r.Put("/edit", h.CommitEdit)
	})

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
