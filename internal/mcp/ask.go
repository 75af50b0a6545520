package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/iecho-project/iecho/internal/engine"
	"github.com/iecho-project/iecho/internal/stream"
)

// AskInput defines the input schema for the ask_iecho tool.
type AskInput struct {
	Query     string `json:"query" jsonschema:"The tuberculosis or agriculture question to ask"`
	UserID    string `json:"userId,omitempty" jsonschema:"Optional stable user identifier"`
	SessionID string `json:"sessionId,omitempty" jsonschema:"Optional session id to continue an earlier conversation"`
}

// registerAsk registers the ask_iecho tool.
func (s *Server) registerAsk() error {
	inputSchema, err := jsonschema.For[AskInput](nil)
	if err != nil {
		return fmt.Errorf("creating input schema: %w", err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "ask_iecho",
		Description: "Ask the iECHO assistant a question about tuberculosis or agriculture. " +
			"Returns an answer grounded in the indexed knowledge base, with source citations appended. " +
			"Pass the sessionId from a previous answer to keep conversation context.",
		InputSchema: inputSchema,
	}, s.ask)

	return nil
}

// ask handles the ask_iecho MCP tool call with a buffered engine query.
func (s *Server) ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, any, error) {
	resp, err := s.engine.Query(ctx, engine.Request{
		Query:     in.Query,
		UserID:    in.UserID,
		SessionID: in.SessionID,
	}, nil)
	if err != nil {
		// Input problems and turn timeouts are tool-level errors the
		// client should display; anything else propagates as a protocol
		// failure.
		if msg := userFacingError(err); msg != "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: msg}},
				IsError: true,
			}, nil, nil
		}
		s.logger.Error("ask_iecho query failed", "error", err)
		return nil, nil, fmt.Errorf("ask_iecho: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: formatAnswer(resp)}},
	}, nil, nil
}

// userFacingError returns the display message for errors the caller can act
// on, or "" when the error is internal.
func userFacingError(err error) string {
	switch {
	case errors.Is(err, engine.ErrEmptyQuery):
		return "Query cannot be empty"
	case errors.Is(err, engine.ErrQueryTooLong):
		return fmt.Sprintf("Query too long. Maximum %d tokens allowed.", engine.MaxQueryTokens)
	case errors.Is(err, engine.ErrTimeout):
		return stream.TimeoutMessage
	default:
		return ""
	}
}

// formatAnswer renders the answer text with session continuation info and
// citation titles appended.
func formatAnswer(resp *engine.Response) string {
	var b strings.Builder
	b.WriteString(resp.Text)

	if len(resp.Citations) > 0 {
		b.WriteString("\n\nSources:")
		for _, c := range resp.Citations {
			b.WriteString("\n- ")
			b.WriteString(c.Title)
		}
	}

	fmt.Fprintf(&b, "\n\n[sessionId: %s]", resp.SessionID)
	return b.String()
}
