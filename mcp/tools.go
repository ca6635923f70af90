package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	kiku "github.com/kiku-ai/kiku-go"
	"github.com/kiku-ai/kiku-go/stream"
)

// maxToolRows caps the rows embedded in a tool result. Full result sets
// belong in a UI, not an agent context window.
const maxToolRows = 100

func (s *Server) registerTools() {
	// kiku_ask — ask a natural-language question about connected data.
	s.mcpServer.AddTool(
		mcplib.NewTool("kiku_ask",
			mcplib.WithDescription(`Ask a natural-language question about the workspace's connected data.

The question is translated to SQL and executed against the chosen data
source. The answer is returned once complete:
- sql: the generated query, for auditability
- columns/rows: the result set (truncated to 100 rows)
- summary: a plain-language interpretation of the result
- error: set when the question could not be answered

EXAMPLE: question="Which products grew revenue fastest last quarter?"`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("question",
				mcplib.Description("The question, in natural language"),
				mcplib.Required(),
			),
			mcplib.WithString("source_id",
				mcplib.Description("Catalog id of the data source to query. Omit for the default source."),
			),
		),
		s.handleAsk,
	)

	// kiku_feedback — rate a previous answer.
	s.mcpServer.AddTool(
		mcplib.NewTool("kiku_feedback",
			mcplib.WithDescription(`Rate a previous kiku_ask answer so query generation improves.

Pass the trace_id from the answer you are rating and a rating from
1 (wrong) to 5 (exactly right).`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("trace_id",
				mcplib.Description("Trace id of the answer being rated"),
				mcplib.Required(),
			),
			mcplib.WithNumber("rating",
				mcplib.Description("1 (wrong) to 5 (exactly right)"),
				mcplib.Required(),
				mcplib.Min(1),
				mcplib.Max(5),
			),
			mcplib.WithString("comment",
				mcplib.Description("Optional free-text comment"),
			),
		),
		s.handleFeedback,
	)
}

func (s *Server) handleAsk(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question := request.GetString("question", "")
	if question == "" {
		return errorResult("question is required"), nil
	}
	sourceID := request.GetString("source_id", "")

	ctx, cancel := context.WithTimeout(ctx, s.askTimeout)
	defer cancel()

	handle, err := s.client.Ask(ctx, kiku.AskRequest{Question: question, SourceID: sourceID})
	if err != nil {
		return errorResult(fmt.Sprintf("ask failed: %v", err)), nil
	}
	defer handle.Cancel()

	final, err := handle.Wait(ctx)
	if err != nil {
		s.logger.Warn("mcp: ask stream failed", "trace_id", handle.TraceID(), "error", err)
		return errorResult(fmt.Sprintf("stream failed: %v", err)), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: foldResult(final)},
		},
		IsError: final.Status == stream.StatusErrored,
	}, nil
}

// foldResult renders a terminal stream state as one JSON document.
func foldResult(final stream.State) string {
	rows := final.Rows
	truncated := false
	if len(rows) > maxToolRows {
		rows = rows[:maxToolRows]
		truncated = true
	}

	out := map[string]any{
		"status":    string(final.Status),
		"trace_id":  final.TraceID,
		"row_count": len(final.Rows),
	}
	if final.Technical != nil {
		out["sql"] = final.Technical.SQL
		if len(final.Technical.Assumptions) > 0 {
			out["assumptions"] = final.Technical.Assumptions
		}
	}
	if len(final.Columns) > 0 {
		out["columns"] = final.Columns
	}
	if len(rows) > 0 {
		out["rows"] = rows
	}
	if truncated {
		out["rows_truncated"] = true
	}
	if final.Business != nil {
		out["summary"] = final.Business.Summary
		if len(final.Business.Metrics) > 0 {
			out["metrics"] = final.Business.Metrics
		}
	}
	if final.Err != nil {
		out["error"] = map[string]string{"code": final.Err.Code, "message": final.Err.Message}
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	return string(data)
}

func (s *Server) handleFeedback(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	traceID := request.GetString("trace_id", "")
	rating := request.GetInt("rating", 0)
	if traceID == "" || rating == 0 {
		return errorResult("trace_id and rating are required"), nil
	}

	fb, err := s.client.SubmitFeedback(ctx, kiku.FeedbackRequest{
		TraceID: traceID,
		Rating:  rating,
		Comment: request.GetString("comment", ""),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("feedback failed: %v", err)), nil
	}

	resultData, _ := json.Marshal(map[string]any{
		"feedback_id": fb.ID,
		"status":      "recorded",
	})
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
