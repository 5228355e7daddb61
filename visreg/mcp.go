// CLAUDE:SUMMARY Registers the visreg MCP tools: run history, a run's changeset, and ad-hoc screenshot comparison.
package visreg

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/shotdiff/kit"
)

// RegisterMCP registers the visreg tools on an MCP server.
func (a *Archive) RegisterMCP(srv *mcp.Server) {
	a.registerRunsTool(srv)
	a.registerChangesetTool(srv)
	a.registerCompareTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- visreg_runs ---

type runsRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (a *Archive) registerRunsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "visreg_runs",
		Description: "List recent visual regression runs, newest first, with per-status component counts.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max runs (default 20)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*runsRequest)
		runs, err := a.Runs(ctx, rr.Limit)
		if runs == nil && err == nil {
			runs = []*RunRecord{}
		}
		return runs, err
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(a.logger, tool.Name)(endpoint), kit.DecodeJSON[runsRequest]())
}

// --- visreg_changeset ---

type changesetRequest struct {
	RunID  string `json:"run_id"`
	Status string `json:"status,omitempty"`
}

func (a *Archive) registerChangesetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "visreg_changeset",
		Description: "Return the changeset of a run: one entry per component with status ok, added, deleted or changed and its differing pixel count.",
		InputSchema: inputSchema(map[string]any{
			"run_id": map[string]any{"type": "string", "description": "Run identifier (see visreg_runs)"},
			"status": map[string]any{"type": "string", "enum": []any{"ok", "added", "deleted", "changed"}, "description": "Only entries with this status"},
		}, []string{"run_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*changesetRequest)
		if rr.RunID == "" {
			return nil, errors.New("run_id is required")
		}
		return a.Changes(ctx, rr.RunID, Status(rr.Status))
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(a.logger, tool.Name)(endpoint), kit.DecodeJSON[changesetRequest]())
}

// --- visreg_compare ---

type compareRequest struct {
	Baseline  string  `json:"baseline"`
	Feature   string  `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	DiffOut   string  `json:"diff_out,omitempty"`
}

func (a *Archive) registerCompareTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "visreg_compare",
		Description: "Compare two PNG screenshots. Images of different sizes are padded with white to the larger bounds before diffing.",
		InputSchema: inputSchema(map[string]any{
			"baseline":  map[string]any{"type": "string", "description": "Path of the baseline PNG"},
			"feature":   map[string]any{"type": "string", "description": "Path of the feature PNG"},
			"threshold": map[string]any{"type": "number", "description": "Per-pixel sensitivity in (0,1], lower is stricter (default 0.1)"},
			"diff_out":  map[string]any{"type": "string", "description": "Where to write the diff PNG when the images differ"},
		}, []string{"baseline", "feature"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		rr := req.(*compareRequest)
		if rr.Baseline == "" || rr.Feature == "" {
			return nil, errors.New("baseline and feature are required")
		}
		return CompareFiles(rr.Baseline, rr.Feature, rr.Threshold, rr.DiffOut)
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(a.logger, tool.Name)(endpoint), kit.DecodeJSON[compareRequest]())
}
