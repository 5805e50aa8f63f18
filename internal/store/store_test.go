package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/tafl/internal/apperr"
	"github.com/starford/tafl/internal/models"
	"github.com/starford/tafl/internal/txn"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "tafl-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedBoard(t *testing.T, db *DB, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := db.CreateBoard(context.Background(), &models.Board{
		ID: id, Title: "Board " + id, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
}

func seedCard(t *testing.T, db *DB, boardID, id, orderKey string, x, y float64) *models.Card {
	t.Helper()
	now := time.Now().UTC()
	c := &models.Card{
		ID: id, BoardID: boardID, Kind: models.KindNote,
		X: models.Float64Ptr(x), Y: models.Float64Ptr(y),
		Width: 240, OrderKey: orderKey,
		Content:   map[string]any{"text": "card " + id},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.CreateCard(context.Background(), c); err != nil {
		t.Fatalf("CreateCard(%s): %v", id, err)
	}
	return c
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"boards", "cards", "connectors"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestCardRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")

	now := time.Now().UTC().Truncate(time.Second)
	in := &models.Card{
		ID: "stack1", BoardID: "b1", Kind: models.KindStack,
		X: models.Float64Ptr(10), Y: models.Float64Ptr(20),
		Width: 280, Height: models.Float64Ptr(400),
		OrderKey: "V",
		Content:  map[string]any{"title": "Reading list"},
		Members: []models.Member{
			{CardID: "m1", Position: 0},
			{CardID: "m2", Position: 1},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.CreateCard(ctx, in); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	got, err := db.GetCard(ctx, "stack1")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Kind != models.KindStack || *got.X != 10 || *got.Y != 20 {
		t.Errorf("card = %+v", got)
	}
	if *got.Height != 400 {
		t.Errorf("height = %v, want 400", *got.Height)
	}
	if len(got.Members) != 2 || got.Members[1].CardID != "m2" || got.Members[1].Position != 1 {
		t.Errorf("members = %+v", got.Members)
	}
	if got.Content["title"] != "Reading list" {
		t.Errorf("content = %+v", got.Content)
	}
}

func TestCard_NullableCoordinates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")

	now := time.Now().UTC()
	in := &models.Card{
		ID: "member1", BoardID: "b1", Kind: models.KindText,
		Width: 240, OrderKey: "G",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.CreateCard(ctx, in); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	got, err := db.GetCard(ctx, "member1")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.X != nil || got.Y != nil || got.Height != nil {
		t.Errorf("contained card must have no explicit geometry: %+v", got)
	}
}

func TestListCards_OrderKeyAscending(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")
	seedCard(t, db, "b1", "c", "V", 0, 0)
	seedCard(t, db, "b1", "a", "3", 0, 0)
	seedCard(t, db, "b1", "b", "G", 0, 0)

	cards, err := db.ListCards(ctx, "b1")
	if err != nil {
		t.Fatalf("ListCards: %v", err)
	}
	var ids []string
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestConnectorRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")

	now := time.Now().UTC()
	in := &models.Connector{
		ID: "conn1", BoardID: "b1",
		X: 5, Y: 5, StartX: 0, StartY: 0, EndX: 100, EndY: 50,
		Curvature: 30, Bias: -0.5,
		Nodes:       []models.Node{{X: 40, Y: 90}},
		StartAttach: &models.Attachment{CardID: "cardA"},
		CreatedAt:   now, UpdatedAt: now,
	}
	if err := db.CreateConnector(ctx, in); err != nil {
		t.Fatalf("CreateConnector: %v", err)
	}

	got, err := db.GetConnector(ctx, "conn1")
	if err != nil {
		t.Fatalf("GetConnector: %v", err)
	}
	if got.Curvature != 30 || got.Bias != -0.5 {
		t.Errorf("shape = (%v, %v)", got.Curvature, got.Bias)
	}
	if len(got.Nodes) != 1 || got.Nodes[0] != (models.Node{X: 40, Y: 90}) {
		t.Errorf("nodes = %+v", got.Nodes)
	}
	if got.StartAttach == nil || got.StartAttach.CardID != "cardA" {
		t.Errorf("start attach = %+v", got.StartAttach)
	}
	if got.EndAttach != nil {
		t.Errorf("end attach = %+v, want free endpoint", got.EndAttach)
	}
}

func TestCommit_PartialUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")
	seedCard(t, db, "b1", "c1", "G", 100, 200)

	stamp := time.Now().UTC().Truncate(time.Second)
	err := db.Commit(ctx, "b1", []txn.Mutation{
		{EntityID: "c1", Fields: map[string]any{"x": 150.0, "updated_at": stamp}},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, _ := db.GetCard(ctx, "c1")
	if *got.X != 150 {
		t.Errorf("x = %v, want 150", *got.X)
	}
	if *got.Y != 200 {
		t.Errorf("y = %v, untouched field must survive", *got.Y)
	}
	if got.Content["text"] != "card c1" {
		t.Errorf("content lost on partial update: %+v", got.Content)
	}
}

func TestCommit_ClearsCoordinates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")
	seedCard(t, db, "b1", "c1", "G", 100, 200)

	err := db.Commit(ctx, "b1", []txn.Mutation{
		{EntityID: "c1", Fields: map[string]any{"x": nil, "y": nil, "updated_at": time.Now().UTC()}},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, _ := db.GetCard(ctx, "c1")
	if got.X != nil || got.Y != nil {
		t.Errorf("coordinates not cleared: x=%v y=%v", got.X, got.Y)
	}
}

func TestCommit_UnknownEntityRollsBack(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")
	seedCard(t, db, "b1", "c1", "G", 100, 200)

	err := db.Commit(ctx, "b1", []txn.Mutation{
		{EntityID: "c1", Fields: map[string]any{"x": 999.0, "updated_at": time.Now().UTC()}},
		{EntityID: "ghost", Fields: map[string]any{"x": 1.0, "updated_at": time.Now().UTC()}},
	})
	if !errors.Is(err, apperr.ErrUnknownEntity) {
		t.Fatalf("err = %v, want ErrUnknownEntity", err)
	}

	got, _ := db.GetCard(ctx, "c1")
	if *got.X != 100 {
		t.Errorf("x = %v, failed batch must leave no partial write", *got.X)
	}
}

func TestCommit_ScopeIsolation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")
	seedBoard(t, db, "b2")
	seedCard(t, db, "b2", "other", "G", 0, 0)

	// A card on another board is unknown within this board's scope.
	err := db.Commit(ctx, "b1", []txn.Mutation{
		{EntityID: "other", Fields: map[string]any{"x": 5.0, "updated_at": time.Now().UTC()}},
	})
	if !errors.Is(err, apperr.ErrUnknownEntity) {
		t.Fatalf("err = %v, want ErrUnknownEntity", err)
	}
}

func TestCommit_ConnectorAndBoardFields(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")
	now := time.Now().UTC()
	_ = db.CreateConnector(ctx, &models.Connector{
		ID: "conn1", BoardID: "b1", EndX: 10, CreatedAt: now, UpdatedAt: now,
	})

	stamp := time.Now().UTC().Truncate(time.Second)
	err := db.Commit(ctx, "b1", []txn.Mutation{
		{EntityID: "conn1", Fields: map[string]any{
			"curvature":  42.0,
			"end_attach": &models.Attachment{CardID: "x"},
			"updated_at": stamp,
		}},
		{EntityID: "b1", Fields: map[string]any{"title": "Renamed", "updated_at": stamp}},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	conn, _ := db.GetConnector(ctx, "conn1")
	if conn.Curvature != 42 || conn.EndAttach == nil || conn.EndAttach.CardID != "x" {
		t.Errorf("connector = %+v", conn)
	}
	board, _ := db.GetBoard(ctx, "b1")
	if board.Title != "Renamed" {
		t.Errorf("title = %q", board.Title)
	}
}

func TestDeleteBoard_Cascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")
	seedCard(t, db, "b1", "c1", "G", 0, 0)
	now := time.Now().UTC()
	_ = db.CreateConnector(ctx, &models.Connector{ID: "conn1", BoardID: "b1", CreatedAt: now, UpdatedAt: now})

	if err := db.DeleteBoard(ctx, "b1"); err != nil {
		t.Fatalf("DeleteBoard: %v", err)
	}
	if _, err := db.GetCard(ctx, "c1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("card survived board delete: %v", err)
	}
	if _, err := db.GetConnector(ctx, "conn1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("connector survived board delete: %v", err)
	}
}

func TestGetBoard_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetBoard(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateBoard_Duplicate(t *testing.T) {
	db := testDB(t)
	seedBoard(t, db, "b1")
	now := time.Now().UTC()
	err := db.CreateBoard(context.Background(), &models.Board{ID: "b1", Title: "again", CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestBoardChecksum(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")

	cs, err := db.GetBoardChecksum(ctx, "b1")
	if err != nil || cs != "" {
		t.Fatalf("initial checksum = %q, %v", cs, err)
	}
	if err := db.SetBoardChecksum(ctx, "b1", "abc123"); err != nil {
		t.Fatalf("SetBoardChecksum: %v", err)
	}
	cs, _ = db.GetBoardChecksum(ctx, "b1")
	if cs != "abc123" {
		t.Errorf("checksum = %q, want abc123", cs)
	}

	all, err := db.AllBoardChecksums(ctx)
	if err != nil {
		t.Fatalf("AllBoardChecksums: %v", err)
	}
	if all["b1"] != "abc123" {
		t.Errorf("all = %v", all)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedBoard(t, db, "b1")
	now := time.Now().UTC()
	_ = db.CreateCard(ctx, &models.Card{
		ID: "s1", BoardID: "b1", Kind: models.KindNote, Width: 240, OrderKey: "G",
		Content:   map[string]any{"text": "uniqueword appears here"},
		CreatedAt: now, UpdatedAt: now,
	})

	results, err := db.Search(ctx, "b1", "uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].CardID != "s1" {
		t.Errorf("search results = %+v, want 1 hit for s1", results)
	}
}
