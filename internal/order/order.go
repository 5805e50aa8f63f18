// Package order manages the sortable string keys that define card stacking:
// draw order and topmost-wins hit testing. Keys support insertion between any
// two neighbors without renumbering; bring-to-front and send-to-back swap
// existing keys instead of appending, so key length stays bounded by use of
// periodic normalization.
package order

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// alphabet is ordered by byte value so plain string comparison sorts keys.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = len(alphabet)

// Entry pairs a card id with its current ordering key.
type Entry struct {
	ID  string
	Key string
}

// KeyBetween returns a key strictly between low and high. An empty low means
// "before everything", an empty high means "after everything". Generated keys
// never end with the minimum digit, which guarantees a key can always be
// inserted before them later.
func KeyBetween(low, high string) (string, error) {
	if low != "" && high != "" && low >= high {
		return "", fmt.Errorf("order: low %q is not below high %q", low, high)
	}
	return midpoint(low, high), nil
}

// midpoint implements the recursive digit-wise midpoint between a and b,
// where empty a means zero and empty b means infinity. Precondition: a < b
// when both are non-empty, and neither ends with alphabet[0].
func midpoint(a, b string) string {
	if b != "" {
		// Common prefix scan; a is implicitly padded with the minimum digit.
		n := 0
		for n < len(b) && digitOrMin(a, n) == b[n] {
			n++
		}
		if n > 0 {
			rest := ""
			if n < len(a) {
				rest = a[n:]
			}
			return b[:n] + midpoint(rest, b[n:])
		}
	}

	digitA, digitB := 0, base
	if a != "" {
		digitA = strings.IndexByte(alphabet, a[0])
	}
	if b != "" {
		digitB = strings.IndexByte(alphabet, b[0])
	}
	if digitB-digitA > 1 {
		return string(alphabet[(digitA+digitB)/2])
	}

	// Leading digits are consecutive.
	if len(b) > 1 {
		return b[:1]
	}
	rest := ""
	if a != "" {
		rest = a[1:]
	}
	return string(alphabet[digitA]) + midpoint(rest, "")
}

// digitOrMin returns s[i], or the minimum digit when i is past the end.
func digitOrMin(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return alphabet[0]
}

// sortedByKey returns a copy of all ordered by key ascending.
func sortedByKey(all []Entry) []Entry {
	s := make([]Entry, len(all))
	copy(s, all)
	sort.Slice(s, func(i, j int) bool { return s[i].Key < s[j].Key })
	return s
}

// BringToFront moves the selected ids to the top of the stack by swapping
// keys with the cards currently holding the top |ids| positions. Relative
// order within the selection is preserved. Returns an empty map when the
// selection already occupies the top positions.
func BringToFront(ids []string, all []Entry) map[string]string {
	return swapAgainstBoundary(ids, all, true)
}

// SendToBack is the symmetric operation against the bottom keys.
func SendToBack(ids []string, all []Entry) map[string]string {
	return swapAgainstBoundary(ids, all, false)
}

func swapAgainstBoundary(ids []string, all []Entry, front bool) map[string]string {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	k := len(selected)
	if k == 0 || k > len(all) {
		return map[string]string{}
	}

	s := sortedByKey(all)
	var boundary []Entry // the k entries at the targeted end, ascending
	if front {
		boundary = s[len(s)-k:]
	} else {
		boundary = s[:k]
	}

	// Already in place?
	inPlace := 0
	for _, e := range boundary {
		if selected[e.ID] {
			inPlace++
		}
	}
	if inPlace == k {
		return map[string]string{}
	}

	// Target keys, ascending, go to the selection in its current relative order.
	targetKeys := make([]string, 0, k)
	for _, e := range boundary {
		targetKeys = append(targetKeys, e.Key)
	}
	targetSet := make(map[string]bool, k)
	for _, key := range targetKeys {
		targetSet[key] = true
	}

	selEntries := make([]Entry, 0, k)
	for _, e := range s {
		if selected[e.ID] {
			selEntries = append(selEntries, e)
		}
	}
	if len(selEntries) != k {
		// Selection references ids that are not on the board.
		return map[string]string{}
	}

	updates := make(map[string]string)
	vacated := make([]string, 0, k) // selection keys being given up, ascending
	for i, e := range selEntries {
		if e.Key != targetKeys[i] {
			updates[e.ID] = targetKeys[i]
		}
		if !targetSet[e.Key] {
			vacated = append(vacated, e.Key)
		}
	}

	// Displaced boundary holders receive the vacated keys, ascending.
	vi := 0
	for _, e := range boundary {
		if selected[e.ID] {
			continue
		}
		updates[e.ID] = vacated[vi]
		vi++
	}
	return updates
}

// fragmentationSlack is how many characters beyond the minimum a key may grow
// before normalization is suggested.
const fragmentationSlack = 4

// ShouldNormalize reports whether the longest key has outgrown the population:
// repeated midpoint insertion in the same spot grows keys one character per
// insertion, while n cards only ever need about log_base(n) characters.
func ShouldNormalize(all []Entry) bool {
	if len(all) == 0 {
		return false
	}
	maxLen := 0
	for _, e := range all {
		if len(e.Key) > maxLen {
			maxLen = len(e.Key)
		}
	}
	return maxLen > minDigits(len(all))+fragmentationSlack
}

// Normalize reassigns every card an evenly spaced key in its current sorted
// order. Returns only the entries whose key actually changes.
func Normalize(all []Entry) map[string]string {
	n := len(all)
	if n == 0 {
		return map[string]string{}
	}
	s := sortedByKey(all)

	width := minDigits(n) + 1
	if width < 2 {
		width = 2
	}
	span := intPow(base, width)
	step := span / (n + 1)

	updates := make(map[string]string)
	for i, e := range s {
		key := encodeKey((i+1)*step, width)
		if key != e.Key {
			updates[e.ID] = key
		}
	}
	return updates
}

// Ranks returns each card's integer position in draw order (0 = bottom),
// computed from sorted position. Ranks are never derived by parsing the key's
// characters; the key alphabet carries no numeric meaning.
func Ranks(all []Entry) map[string]int {
	s := sortedByKey(all)
	out := make(map[string]int, len(s))
	for i, e := range s {
		out[e.ID] = i
	}
	return out
}

// minDigits returns the minimum key length able to distinguish n entries.
func minDigits(n int) int {
	if n <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log(float64(n+1)) / math.Log(float64(base))))
}

// encodeKey writes v as width base-62 digits, then strips trailing minimum
// digits so the midpoint invariant holds. Distinctness and order survive the
// strip because all inputs share the same width.
func encodeKey(v, width int) string {
	digits := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		digits[i] = alphabet[v%base]
		v /= base
	}
	out := strings.TrimRight(string(digits), string(alphabet[0]))
	if out == "" {
		out = string(alphabet[1])
	}
	return out
}

func intPow(b, e int) int {
	out := 1
	for i := 0; i < e; i++ {
		out *= b
	}
	return out
}
