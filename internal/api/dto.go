package api

import (
	"github.com/starford/tafl/internal/boardservice"
	"github.com/starford/tafl/internal/models"
)

// CreateBoardRequest is the request body for creating a board.
type CreateBoardRequest struct {
	Title string `json:"title" example:"Project wall" validate:"required"`
}

// RenameBoardRequest is the request body for retitling a board.
type RenameBoardRequest struct {
	Title string `json:"title" example:"Project wall v2" validate:"required"`
}

// CreateCardRequest is the request body for creating a card.
type CreateCardRequest struct {
	Kind    string         `json:"kind" example:"note" validate:"required"`
	X       *float64       `json:"x,omitempty" example:"120"`
	Y       *float64       `json:"y,omitempty" example:"80"`
	Width   float64        `json:"width,omitempty" example:"240"`
	Height  *float64       `json:"height,omitempty" example:"240"`
	Content map[string]any `json:"content,omitempty"`
}

// MoveCardsRequest carries a drag gesture's final positions.
type MoveCardsRequest struct {
	Moves map[string]PointDTO `json:"moves" validate:"required"`
}

// PointDTO is a board-space point.
type PointDTO struct {
	X float64 `json:"x" example:"120"`
	Y float64 `json:"y" example:"80"`
}

// ResizeCardRequest is the request body for a resize commit.
type ResizeCardRequest struct {
	Width  float64  `json:"width" example:"320" validate:"required"`
	Height *float64 `json:"height,omitempty" example:"180"`
}

// ContentRequest carries a card's replacement content payload.
type ContentRequest struct {
	Content map[string]any `json:"content" validate:"required"`
}

// SelectionRequest names the cards a layer operation applies to.
type SelectionRequest struct {
	CardIDs []string `json:"card_ids" validate:"required"`
}

// StackMemberRequest adds a card to a stack.
type StackMemberRequest struct {
	CardID string `json:"card_id" validate:"required"`
	At     int    `json:"at" example:"0"`
}

// UnstackRequest pulls a card out of its stack, optionally at a drop point.
type UnstackRequest struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

// CreateConnectorRequest is the request body for creating a connector.
type CreateConnectorRequest struct {
	Start       PointDTO `json:"start" validate:"required"`
	End         PointDTO `json:"end" validate:"required"`
	Curvature   float64  `json:"curvature,omitempty"`
	Bias        float64  `json:"bias,omitempty"`
	StartCardID string   `json:"start_card_id,omitempty"`
	EndCardID   string   `json:"end_card_id,omitempty"`
}

// HandleRequest carries the final position of a connector handle drag.
type HandleRequest struct {
	X float64 `json:"x" validate:"required"`
	Y float64 `json:"y" validate:"required"`
}

// AttachRequest binds a connector endpoint to a card.
type AttachRequest struct {
	Start  bool   `json:"start"`
	CardID string `json:"card_id" validate:"required"`
}

// DetachRequest frees a connector endpoint at a board-space point.
type DetachRequest struct {
	Start bool    `json:"start"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// NodesRequest replaces a connector's reroute waypoints.
type NodesRequest struct {
	Nodes []models.Node `json:"nodes" validate:"required"`
}

// GestureRequest starts an interaction gesture.
type GestureRequest struct {
	Kind       string   `json:"kind" example:"dragging" validate:"required"`
	CardIDs    []string `json:"card_ids,omitempty"`
	CardID     string   `json:"card_id,omitempty"`
	Handle     string   `json:"handle,omitempty" example:"se"`
	FromCardID string   `json:"from_card_id,omitempty"`
	X          float64  `json:"x,omitempty"`
	Y          float64  `json:"y,omitempty"`
}

// Frame is the board render frame (aliased from the domain layer).
type Frame = boardservice.Frame

// BoardListResponse wraps board listings.
type BoardListResponse struct {
	Boards []models.Board `json:"boards" validate:"required"`
}

// SelectionHitsResponse lists the entities a rubber-band selection touched.
type SelectionHitsResponse struct {
	CardIDs      []string `json:"card_ids" validate:"required"`
	ConnectorIDs []string `json:"connector_ids" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	CardID  string `json:"card_id" example:"8f14e45f" validate:"required"`
	BoardID string `json:"board_id" example:"c9f0f895" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
