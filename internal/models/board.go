// Package models defines the domain types for tafl boards.
package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tafl/internal/geometry"
)

// CardKind is the tagged variant of card types. Geometry defaults come from
// KindDefaults; adding a kind means adding exactly one table entry.
type CardKind string

const (
	KindNote  CardKind = "note"
	KindText  CardKind = "text"
	KindImage CardKind = "image"
	KindLink  CardKind = "link"
	KindStack CardKind = "stack" // container card with an ordered member list
	KindBoard CardKind = "board" // reference to a nested board
)

// Size is a default card extent.
type Size struct {
	Width  float64
	Height float64
}

// KindDefaults maps every card kind to its default geometry. Lookups on
// unknown kinds fall back to the note defaults.
var KindDefaults = map[CardKind]Size{
	KindNote:  {Width: 240, Height: 240},
	KindText:  {Width: 240, Height: 56},
	KindImage: {Width: 320, Height: 240},
	KindLink:  {Width: 280, Height: 96},
	KindStack: {Width: 280, Height: 400},
	KindBoard: {Width: 200, Height: 140},
}

// DefaultSize returns the geometry defaults for kind.
func DefaultSize(kind CardKind) Size {
	if s, ok := KindDefaults[kind]; ok {
		return s
	}
	return KindDefaults[KindNote]
}

// Member is one entry in a stack card's ordered member list. Position values
// form a contiguous 0..k-1 permutation after every mutation.
type Member struct {
	CardID   string `json:"card_id"`
	Position int    `json:"position"`
}

// Card is any entity on a board except connectors. A card either has explicit
// coordinates (X and Y non-nil) or is referenced by exactly one stack card's
// member list, never both and never neither.
type Card struct {
	ID      string   `json:"id"`
	BoardID string   `json:"board_id"`
	Kind    CardKind `json:"kind"`

	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  float64  `json:"width"`
	Height *float64 `json:"height,omitempty"`

	// OrderKey is the sortable stacking key; draw order and topmost hit
	// testing follow plain string comparison.
	OrderKey string `json:"order_key"`

	// Content holds the kind-specific payload (text, url, media ref, ...).
	Content map[string]any `json:"content,omitempty"`

	// Members is populated for KindStack only.
	Members []Member `json:"members,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks structural card invariants.
func (c *Card) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.BoardID, validation.Required),
		validation.Field(&c.Kind, validation.Required, validation.In(
			KindNote, KindText, KindImage, KindLink, KindStack, KindBoard)),
		validation.Field(&c.OrderKey, validation.Required),
	)
}

// HasExplicitPosition reports whether the card carries its own coordinates.
func (c *Card) HasExplicitPosition() bool { return c.X != nil && c.Y != nil }

// IsContainer reports whether the card holds a member list.
func (c *Card) IsContainer() bool { return c.Kind == KindStack }

// MemberIndex returns the position of id in the member list, or -1.
func (c *Card) MemberIndex(id string) int {
	for _, m := range c.Members {
		if m.CardID == id {
			return m.Position
		}
	}
	return -1
}

// EffectiveHeight returns the explicit height or the kind default.
func (c *Card) EffectiveHeight() float64 {
	if c.Height != nil {
		return *c.Height
	}
	return DefaultSize(c.Kind).Height
}

// EffectiveWidth returns the explicit width or the kind default.
func (c *Card) EffectiveWidth() float64 {
	if c.Width > 0 {
		return c.Width
	}
	return DefaultSize(c.Kind).Width
}

// Rect returns the card's bounds given its resolved screen position.
func (c *Card) Rect(pos geometry.Point) geometry.Rect {
	return geometry.Rect{X: pos.X, Y: pos.Y, W: c.EffectiveWidth(), H: c.EffectiveHeight()}
}

// Attachment binds a connector endpoint to a card.
type Attachment struct {
	CardID string `json:"card_id"`
}

// Node is an explicit intermediate waypoint along a connector, relative to
// the connector's own position.
type Node struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Connector is a curved or straight line joining two endpoints, each
// optionally attached to a card. Stored endpoint coordinates are the
// last-known fallback only; an attached endpoint's rendered position is
// always derived.
type Connector struct {
	ID      string `json:"id"`
	BoardID string `json:"board_id"`

	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	StartX float64 `json:"start_x"`
	StartY float64 `json:"start_y"`
	EndX   float64 `json:"end_x"`
	EndY   float64 `json:"end_y"`

	Curvature float64 `json:"curvature"`
	Bias      float64 `json:"bias"`

	Nodes []Node `json:"nodes,omitempty"`

	StartAttach *Attachment `json:"start_attach,omitempty"`
	EndAttach   *Attachment `json:"end_attach,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks structural connector invariants.
func (c *Connector) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.BoardID, validation.Required),
	)
}

// StartPoint returns the stored start endpoint in board space.
func (c *Connector) StartPoint() geometry.Point {
	return geometry.Point{X: c.X + c.StartX, Y: c.Y + c.StartY}
}

// EndPoint returns the stored end endpoint in board space.
func (c *Connector) EndPoint() geometry.Point {
	return geometry.Point{X: c.X + c.EndX, Y: c.Y + c.EndY}
}

// Board is the top-level grouping entity.
type Board struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks board invariants.
func (b *Board) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.ID, validation.Required),
		validation.Field(&b.Title, validation.Required, validation.Length(1, 256)),
	)
}

// Float64Ptr returns a pointer to v; convenience for optional coordinates.
func Float64Ptr(v float64) *float64 { return &v }
