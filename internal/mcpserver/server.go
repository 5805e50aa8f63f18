// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Tafl board tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tafl/internal/boardservice"
	"github.com/starford/tafl/internal/geometry"
	"github.com/starford/tafl/internal/models"
)

// Server wraps the MCP server with Tafl tools.
type Server struct {
	mcp *server.MCPServer
	svc *boardservice.Service
}

// New creates a new MCP server with all Tafl tools registered.
func New(svc *boardservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Tafl",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_boards",
		mcp.WithDescription("List all boards with their ids and titles."),
	), s.listBoards)

	s.mcp.AddTool(mcp.NewTool("board_frame",
		mcp.WithDescription("Return a board's render frame: cards with resolved positions "+
			"and stacking ranks, connectors with solved SVG paths, and undo availability."),
		mcp.WithString("board_id", mcp.Required(), mcp.Description("Board id")),
	), s.boardFrame)

	s.mcp.AddTool(mcp.NewTool("create_card",
		mcp.WithDescription("Create a card on a board. The card is placed on top of the "+
			"stacking order. Read the board contract first via the get_board_contract tool "+
			"or the tafl://board-format resource."),
		mcp.WithString("board_id", mcp.Required(), mcp.Description("Board id")),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Card kind (note, text, image, link, stack, board)")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Board-space x position")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Board-space y position")),
		mcp.WithString("text", mcp.Description("Optional text content for the card")),
	), s.createCard)

	s.mcp.AddTool(mcp.NewTool("move_cards",
		mcp.WithDescription("Move one or more cards in a single undoable step. "+
			`moves is a JSON object mapping card ids to points, e.g. {"c1":{"x":100,"y":50}}.`),
		mcp.WithString("board_id", mcp.Required(), mcp.Description("Board id")),
		mcp.WithString("moves", mcp.Required(), mcp.Description("JSON object of card id to {x, y}")),
	), s.moveCards)

	s.mcp.AddTool(mcp.NewTool("undo_board",
		mcp.WithDescription("Undo the most recent undoable change on a board."),
		mcp.WithString("board_id", mcp.Required(), mcp.Description("Board id")),
	), s.undoBoard)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Full-text search through card content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("board_id", mcp.Description("Optional board id to scope the search")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("get_board_contract",
		mcp.WithDescription("Returns the canonical Tafl board snapshot contract. "+
			"Call this before creating cards or interpreting frames."),
	), s.getBoardContract)

	// Resource: board format contract.
	s.mcp.AddResource(
		mcp.NewResource("tafl://board-format", "Board Format Contract",
			mcp.WithResourceDescription("Canonical board snapshot format for all exports and imports."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBoardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listBoards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boards, err := s.svc.ListBoards(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(boards, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) boardFrame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boardID, err := req.RequireString("board_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	frame, err := s.svc.Frame(ctx, boardID, boardservice.FrameOptions{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("board not found: %s", boardID)), nil
	}
	out, _ := json.MarshalIndent(frame, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boardID, err := req.RequireString("board_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	x, err := req.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := req.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	params := boardservice.CardParams{
		Kind:     models.CardKind(kind),
		Position: &geometry.Point{X: x, Y: y},
	}
	if text := req.GetString("text", ""); text != "" {
		params.Content = map[string]any{"text": text}
	}

	card, err := s.svc.CreateCard(ctx, boardID, params)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", card.ID)), nil
}

func (s *Server) moveCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boardID, err := req.RequireString("board_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("moves")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var moves map[string]geometry.Point
	if err := json.Unmarshal([]byte(raw), &moves); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid moves JSON: %v", err)), nil
	}
	if len(moves) == 0 {
		return mcp.NewToolResultError("moves must not be empty"), nil
	}

	if err := s.svc.MoveCards(ctx, boardID, moves); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved %d cards", len(moves))), nil
}

func (s *Server) undoBoard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boardID, err := req.RequireString("board_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !s.svc.CanUndo(boardID) {
		return mcp.NewToolResultText("nothing to undo"), nil
	}
	if err := s.svc.Undo(ctx, boardID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("undone"), nil
}

func (s *Server) searchCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	boardID := req.GetString("board_id", "")

	results, err := s.svc.Search(ctx, boardID, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBoardContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BoardFormatContract), nil
}

func (s *Server) readBoardFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "tafl://board-format",
			MIMEType: "text/markdown",
			Text:     BoardFormatContract,
		},
	}, nil
}
