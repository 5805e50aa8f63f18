package mcpserver

// BoardFormatContract describes the board snapshot document format that
// LLM consumers should follow when reading or producing board exports.
const BoardFormatContract = `# Tafl Board Snapshot Contract

Every board snapshot exchanged with Tafl MUST follow this structure.

## Structure

` + "```" + `json
{
  "version": 1,
  "board": {"id": "...", "title": "Human-readable title"},
  "cards": [
    {
      "id": "...", "board_id": "...", "kind": "note",
      "x": 120, "y": 80, "width": 240,
      "order_key": "V",
      "content": {"text": "Markdown body"}
    }
  ],
  "connectors": [
    {
      "id": "...", "board_id": "...",
      "x": 0, "y": 0, "start_x": 0, "start_y": 0, "end_x": 400, "end_y": 0,
      "curvature": 0, "bias": 0,
      "start_attach": {"card_id": "..."}
    }
  ]
}
` + "```" + `

## Rules

1. **Card kinds** are one of: ` + "`" + `note` + "`" + `, ` + "`" + `text` + "`" + `, ` + "`" + `image` + "`" + `, ` + "`" + `link` + "`" + `, ` + "`" + `stack` + "`" + `, ` + "`" + `board` + "`" + `.
2. **Coordinates** are board-space pixels, y grows downward. ` + "`" + `x` + "`" + `/` + "`" + `y` + "`" + ` are omitted
   for cards inside a stack; their position derives from the stack layout.
3. **Order keys** are opaque strings; relative order is their lexicographic
   order. Never invent keys; let the server assign them.
4. **Stack members** live in the stack card's ` + "`" + `members` + "`" + ` list, ordered top to
   bottom. A card appears in at most one stack.
5. **Connector endpoint coordinates** (` + "`" + `start_x` + "`" + ` etc.) are relative to the
   connector's ` + "`" + `x` + "`" + `/` + "`" + `y` + "`" + ` origin and are ignored for attached endpoints.
6. **Curvature and bias** shape the curve: curvature is the perpendicular
   offset of the midpoint handle, bias slides it along the chord (-1..1).
7. **Every entity's ` + "`" + `board_id` + "`" + `** must equal the document's board id.
`
