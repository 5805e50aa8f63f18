// Package layout derives screen positions for cards that live inside stack
// (container) cards instead of carrying explicit coordinates, and finds drop
// targets while dragging.
package layout

import (
	"log/slog"
	"sort"

	"github.com/starford/tafl/internal/geometry"
	"github.com/starford/tafl/internal/models"
)

// Stack layout metrics.
const (
	PaddingTop  = 44.0 // room for the container title row
	PaddingLeft = 12.0
	ItemGap     = 8.0
)

// Overrides carries live drag positions keyed by card id. They substitute the
// stored coordinates for the duration of a gesture without being persisted.
type Overrides map[string]geometry.Point

// Heights carries live-measured member heights (e.g. while a note is being
// edited) keyed by card id.
type Heights map[string]float64

// ScreenPosition resolves the screen position of the card with the given id.
// Explicit coordinates (or a live drag override) win; otherwise the position
// is derived from the owning container: the container's own screen position
// (resolved recursively) plus the accumulated heights of preceding members.
//
// Returns nil and logs a warning when no container references the card or
// the member entry is missing; both indicate an upstream consistency
// violation, not a caller error.
func ScreenPosition(id string, cards map[string]*models.Card, ov Overrides, hs Heights, logger *slog.Logger) *geometry.Point {
	return screenPosition(id, cards, ov, hs, logger, 0)
}

// maxContainerDepth bounds recursion so a corrupt membership cycle cannot
// hang the frame.
const maxContainerDepth = 32

func screenPosition(id string, cards map[string]*models.Card, ov Overrides, hs Heights, logger *slog.Logger, depth int) *geometry.Point {
	if depth > maxContainerDepth {
		logger.Warn("layout: container nesting too deep or cyclic", slog.String("card_id", id))
		return nil
	}

	card, ok := cards[id]
	if !ok {
		logger.Warn("layout: unknown card", slog.String("card_id", id))
		return nil
	}

	if p, ok := ov[id]; ok {
		return &p
	}
	if card.HasExplicitPosition() {
		return &geometry.Point{X: *card.X, Y: *card.Y}
	}

	container := findContainer(id, cards)
	if container == nil {
		logger.Warn("layout: card has no coordinates and no container", slog.String("card_id", id))
		return nil
	}

	origin := screenPosition(container.ID, cards, ov, hs, logger, depth+1)
	if origin == nil {
		return nil
	}

	idx := container.MemberIndex(id)
	if idx < 0 {
		// findContainer matched on membership, so this is unreachable unless
		// the member list mutated concurrently; keep the guard anyway.
		logger.Warn("layout: card missing from its container member list",
			slog.String("card_id", id), slog.String("container_id", container.ID))
		return nil
	}

	y := origin.Y + PaddingTop
	for _, m := range sortedMembers(container.Members) {
		if m.CardID == id {
			break
		}
		y += memberHeight(m.CardID, cards, hs) + ItemGap
	}

	return &geometry.Point{X: origin.X + PaddingLeft, Y: y}
}

// memberHeight prefers the live-measured height, then the member's stored
// height, then its kind default.
func memberHeight(id string, cards map[string]*models.Card, hs Heights) float64 {
	if h, ok := hs[id]; ok {
		return h
	}
	if c, ok := cards[id]; ok {
		return c.EffectiveHeight()
	}
	return models.DefaultSize(models.KindNote).Height
}

// findContainer returns the stack card whose member list references id.
func findContainer(id string, cards map[string]*models.Card) *models.Card {
	for _, c := range cards {
		if !c.IsContainer() {
			continue
		}
		if c.MemberIndex(id) >= 0 {
			return c
		}
	}
	return nil
}

func sortedMembers(members []models.Member) []models.Member {
	s := make([]models.Member, len(members))
	copy(s, members)
	sort.Slice(s, func(i, j int) bool { return s[i].Position < s[j].Position })
	return s
}

// FindOverlappingContainers returns every stack card whose bounds overlap
// candidate, topmost first by ordering key. Used to pick a drop target while
// dragging.
func FindOverlappingContainers(candidate geometry.Rect, cards map[string]*models.Card, ov Overrides, logger *slog.Logger) []*models.Card {
	var out []*models.Card
	for _, c := range cards {
		if !c.IsContainer() {
			continue
		}
		pos := ScreenPosition(c.ID, cards, ov, nil, logger)
		if pos == nil {
			continue
		}
		if candidate.Overlaps(c.Rect(*pos)) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderKey > out[j].OrderKey })
	return out
}

// InsertMember splices id into members at position at (clamped to the list
// bounds) and reindexes every position to a contiguous 0..k-1 run. The caller
// is responsible for clearing the inserted card's explicit coordinates in the
// same transaction.
func InsertMember(members []models.Member, id string, at int) []models.Member {
	s := sortedMembers(members)
	if at < 0 {
		at = 0
	}
	if at > len(s) {
		at = len(s)
	}
	out := make([]models.Member, 0, len(s)+1)
	out = append(out, s[:at]...)
	out = append(out, models.Member{CardID: id})
	out = append(out, s[at:]...)
	return reindex(out)
}

// RemoveMember strips id from members and reindexes. The second return value
// is false when id was not a member. The caller is responsible for assigning
// the removed card explicit coordinates equal to its last known screen
// position in the same transaction.
func RemoveMember(members []models.Member, id string) ([]models.Member, bool) {
	s := sortedMembers(members)
	out := make([]models.Member, 0, len(s))
	found := false
	for _, m := range s {
		if m.CardID == id {
			found = true
			continue
		}
		out = append(out, m)
	}
	if !found {
		return s, false
	}
	return reindex(out), true
}

func reindex(members []models.Member) []models.Member {
	for i := range members {
		members[i].Position = i
	}
	return members
}
