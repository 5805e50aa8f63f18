package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/tafl/internal/boardservice"
	"github.com/starford/tafl/internal/models"
	"github.com/starford/tafl/internal/testutil"
)

// testEnv sets up a temp SQLite store, service, and router for testing.
// authToken="" means disabled mode; a non-empty token enables Bearer auth.
func testEnv(t *testing.T, authToken string) (*boardservice.Service, http.Handler) {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*boardservice.Service, http.Handler) {
	t.Helper()

	db := testutil.TestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	next := 0
	svc := boardservice.NewService(db, logger, boardservice.WithIDFunc(func() string {
		next++
		return fmt.Sprintf("id%d", next)
	}))
	router := NewRouter(svc, authEnabled, authToken, sseHandler)
	return svc, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createBoard(t *testing.T, router http.Handler, title string) models.Board {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/boards", CreateBoardRequest{Title: title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create board = %d, body = %s", w.Code, w.Body.String())
	}
	var b models.Board
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}
	return b
}

func createCard(t *testing.T, router http.Handler, boardID string, x, y float64) models.Card {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/boards/"+boardID+"/cards", CreateCardRequest{
		Kind: "note", X: &x, Y: &y, Width: 200,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create card = %d, body = %s", w.Code, w.Body.String())
	}
	var c models.Card
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil {
		t.Fatal(err)
	}
	return c
}

func getFrame(t *testing.T, router http.Handler, boardID string) Frame {
	t.Helper()
	w := doJSON(t, router, http.MethodGet, "/boards/"+boardID+"/frame", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("frame = %d, body = %s", w.Code, w.Body.String())
	}
	var f Frame
	if err := json.Unmarshal(w.Body.Bytes(), &f); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestCreateAndGetBoard(t *testing.T) {
	_, router := testEnv(t, "")

	board := createBoard(t, router, "Project wall")

	w := doJSON(t, router, http.MethodGet, "/boards/"+board.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get board = %d", w.Code)
	}
	var got models.Board
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Project wall" {
		t.Errorf("title = %q, want %q", got.Title, "Project wall")
	}
}

func TestCreateBoard_MissingTitle(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/boards", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty title = %d, want 400", w.Code)
	}
}

func TestRenameBoard(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "before")

	w := doJSON(t, router, http.MethodPatch, "/boards/"+board.ID, RenameBoardRequest{Title: "after"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/boards/"+board.ID, nil)
	var got models.Board
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "after" {
		t.Errorf("title = %q, want after", got.Title)
	}
}

func TestDeleteBoard(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "doomed")

	w := doJSON(t, router, http.MethodDelete, "/boards/"+board.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/boards/"+board.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestGetBoard_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/boards/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing board = %d, want 404", w.Code)
	}
}

func TestCreateCardAndFrame(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")
	card := createCard(t, router, board.ID, 120, 80)

	frame := getFrame(t, router, board.ID)
	if len(frame.Cards) != 1 {
		t.Fatalf("frame cards = %d, want 1", len(frame.Cards))
	}
	fc := frame.Cards[0]
	if fc.Card.ID != card.ID {
		t.Errorf("card id = %q, want %q", fc.Card.ID, card.ID)
	}
	if fc.Position == nil || fc.Position.X != 120 || fc.Position.Y != 80 {
		t.Errorf("position = %v, want (120, 80)", fc.Position)
	}
	if fc.Rank != 0 {
		t.Errorf("rank = %d, want 0", fc.Rank)
	}
	if frame.Mode != "idle" {
		t.Errorf("mode = %q, want idle", frame.Mode)
	}
}

func TestCreateCard_MissingKind(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")

	w := doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/cards", map[string]any{"width": 200})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing kind = %d, want 400", w.Code)
	}
}

func TestMoveCardsAndUndo(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")
	card := createCard(t, router, board.ID, 10, 20)

	w := doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/cards/move", MoveCardsRequest{
		Moves: map[string]PointDTO{card.ID: {X: 100, Y: 200}},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}

	frame := getFrame(t, router, board.ID)
	if frame.Cards[0].Position.X != 100 || frame.Cards[0].Position.Y != 200 {
		t.Fatalf("moved position = %v", frame.Cards[0].Position)
	}
	if !frame.CanUndo {
		t.Error("CanUndo = false after move")
	}

	w = doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/undo", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("undo = %d", w.Code)
	}

	frame = getFrame(t, router, board.ID)
	if frame.Cards[0].Position.X != 10 || frame.Cards[0].Position.Y != 20 {
		t.Errorf("undone position = %v, want (10, 20)", frame.Cards[0].Position)
	}
	if !frame.CanRedo {
		t.Error("CanRedo = false after undo")
	}
}

func TestReorderEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")
	a := createCard(t, router, board.ID, 0, 0)
	b := createCard(t, router, board.ID, 10, 10)

	w := doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/order/front", SelectionRequest{CardIDs: []string{a.ID}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("front = %d, body = %s", w.Code, w.Body.String())
	}

	frame := getFrame(t, router, board.ID)
	ranks := map[string]int{}
	for _, fc := range frame.Cards {
		ranks[fc.Card.ID] = fc.Rank
	}
	if ranks[a.ID] != 1 || ranks[b.ID] != 0 {
		t.Errorf("ranks = %v, want %s on top", ranks, a.ID)
	}

	w = doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/order/back", SelectionRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty selection = %d, want 400", w.Code)
	}
}

func TestStackEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")

	x, y := 500.0, 400.0
	w := doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/cards", CreateCardRequest{
		Kind: "stack", X: &x, Y: &y, Width: 260,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create stack = %d, body = %s", w.Code, w.Body.String())
	}
	var stack models.Card
	_ = json.Unmarshal(w.Body.Bytes(), &stack)

	note := createCard(t, router, board.ID, 10, 10)

	w = doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/stacks/"+stack.ID+"/members",
		StackMemberRequest{CardID: note.ID, At: 0})
	if w.Code != http.StatusNoContent {
		t.Fatalf("add member = %d, body = %s", w.Code, w.Body.String())
	}

	frame := getFrame(t, router, board.ID)
	for _, fc := range frame.Cards {
		if fc.Card.ID != note.ID {
			continue
		}
		if fc.Card.X != nil {
			t.Error("stacked card kept explicit x")
		}
		if fc.Position == nil {
			t.Fatal("stacked card has no derived position")
		}
		if fc.Position.X <= 500 || fc.Position.Y <= 400 {
			t.Errorf("derived position = %v, want inside stack", fc.Position)
		}
	}

	w = doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/cards/"+note.ID+"/unstack",
		UnstackRequest{X: &x, Y: &y})
	if w.Code != http.StatusNoContent {
		t.Fatalf("unstack = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestConnectorLifecycle(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")

	w := doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/connectors", CreateConnectorRequest{
		Start: PointDTO{X: 0, Y: 0},
		End:   PointDTO{X: 400, Y: 0},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create connector = %d, body = %s", w.Code, w.Body.String())
	}
	var conn models.Connector
	_ = json.Unmarshal(w.Body.Bytes(), &conn)

	frame := getFrame(t, router, board.ID)
	if len(frame.Connectors) != 1 {
		t.Fatalf("frame connectors = %d, want 1", len(frame.Connectors))
	}
	if frame.Connectors[0].Path == "" {
		t.Error("empty connector path")
	}

	w = doJSON(t, router, http.MethodPost,
		"/boards/"+board.ID+"/connectors/"+conn.ID+"/handle", HandleRequest{X: 200, Y: 50})
	if w.Code != http.StatusNoContent {
		t.Fatalf("drag handle = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodDelete, "/boards/"+board.ID+"/connectors/"+conn.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete connector = %d, want 204", w.Code)
	}
}

func TestAttachDetachEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")
	card := createCard(t, router, board.ID, 100, 100)

	w := doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/connectors", CreateConnectorRequest{
		Start: PointDTO{X: 500, Y: 150},
		End:   PointDTO{X: 800, Y: 150},
	})
	var conn models.Connector
	_ = json.Unmarshal(w.Body.Bytes(), &conn)

	w = doJSON(t, router, http.MethodPost,
		"/boards/"+board.ID+"/connectors/"+conn.ID+"/attach", AttachRequest{Start: true, CardID: card.ID})
	if w.Code != http.StatusNoContent {
		t.Fatalf("attach = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost,
		"/boards/"+board.ID+"/connectors/"+conn.ID+"/detach", DetachRequest{Start: true, X: 450, Y: 140})
	if w.Code != http.StatusNoContent {
		t.Fatalf("detach = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSelectionEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")
	card := createCard(t, router, board.ID, 100, 100)

	w := doJSON(t, router, http.MethodGet,
		"/boards/"+board.ID+"/selection?x=50&y=50&w=200&h=200", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("selection = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SelectionHitsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.CardIDs) != 1 || resp.CardIDs[0] != card.ID {
		t.Errorf("card hits = %v, want [%s]", resp.CardIDs, card.ID)
	}

	w = doJSON(t, router, http.MethodGet, "/boards/"+board.ID+"/selection?x=50", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("partial query = %d, want 400", w.Code)
	}
}

func TestGestureEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")
	card := createCard(t, router, board.ID, 0, 0)

	w := doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/gesture",
		GestureRequest{Kind: "dragging", CardIDs: []string{card.ID}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("start drag = %d, body = %s", w.Code, w.Body.String())
	}

	// A second gesture while one is active conflicts.
	w = doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/gesture",
		GestureRequest{Kind: "panning"})
	if w.Code != http.StatusConflict {
		t.Errorf("second gesture = %d, want 409", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/boards/"+board.ID+"/gesture", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel = %d", w.Code)
	}

	frame := getFrame(t, router, board.ID)
	if frame.Mode != "idle" {
		t.Errorf("mode after cancel = %q, want idle", frame.Mode)
	}
}

func TestEditFlow(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")
	card := createCard(t, router, board.ID, 0, 0)

	w := doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/gesture",
		GestureRequest{Kind: "editing", CardID: card.ID})
	if w.Code != http.StatusNoContent {
		t.Fatalf("begin edit = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPut, "/boards/"+board.ID+"/edit",
		ContentRequest{Content: map[string]any{"text": "hello"}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("commit edit = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/boards/"+board.ID+"/cards/"+card.ID, nil)
	var got models.Card
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Content["text"] != "hello" {
		t.Errorf("content = %v, want text hello", got.Content)
	}
}

func TestUpdateContent_IfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")
	card := createCard(t, router, board.ID, 0, 0)

	w := doJSON(t, router, http.MethodGet, "/boards/"+board.ID+"/cards/"+card.ID, nil)
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("get card returned no ETag")
	}

	contentPath := "/boards/" + board.ID + "/cards/" + card.ID + "/content"
	putContent := func(text, ifMatch string) *httptest.ResponseRecorder {
		raw, err := json.Marshal(ContentRequest{Content: map[string]any{"text": text}})
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodPut, contentPath, bytes.NewReader(raw))
		if ifMatch != "" {
			req.Header.Set("If-Match", ifMatch)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := putContent("first", etag); rec.Code != http.StatusNoContent {
		t.Fatalf("matching If-Match = %d, body = %s", rec.Code, rec.Body.String())
	}
	// The first update changed the content, so the old tag is now stale.
	if rec := putContent("second", etag); rec.Code != http.StatusConflict {
		t.Errorf("stale If-Match = %d, want 409", rec.Code)
	}
	if rec := putContent("second", ""); rec.Code != http.StatusNoContent {
		t.Errorf("absent If-Match = %d, want 204", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	board := createBoard(t, router, "b")

	x, y := 0.0, 0.0
	w := doJSON(t, router, http.MethodPost, "/boards/"+board.ID+"/cards", CreateCardRequest{
		Kind: "note", X: &x, Y: &y, Width: 200,
		Content: map[string]any{"text": "uniquetoken here"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/search?q=uniquetoken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 {
		t.Errorf("results = %d, want 1", len(resp.Results))
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(CreateBoardRequest{Title: "auth"})
	req := httptest.NewRequest(http.MethodPost, "/boards", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/boards", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/boards", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/boards", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	sse := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})
	_, router := testEnvFull(t, true, "secret", sse)

	// No token.
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	// Valid token streams until the context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req = httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with token = %d, want 200", w.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/boards", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}
