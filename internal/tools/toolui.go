package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"loom/internal/logx"
	"loom/internal/toolui/schema"
	"loom/internal/toolui/surface"
)

const (
	ShowTableName       = "show_table"
	ShowStatsName       = "show_stats"
	RequestApprovalName = "request_approval"
)

// SurfaceKindOf maps a Tool-UI tool name to the surface kind it renders.
func SurfaceKindOf(toolName string) (schema.SurfaceKind, bool) {
	switch toolName {
	case ShowTableName:
		return schema.SurfaceDataTable, true
	case ShowStatsName:
		return schema.SurfaceStats, true
	case RequestApprovalName:
		return schema.SurfaceApproval, true
	}
	return "", false
}

// Surfaces is where Tool-UI payloads are published and decided.
type Surfaces interface {
	Add(ctx context.Context, raw []byte) (*surface.Entry, error)
	Await(ctx context.Context, surfaceID string) (string, error)
}

type surfaceTool struct {
	name        string
	description string
	kind        schema.SurfaceKind
	schema      json.RawMessage
	host        Surfaces
	await       bool
}

// SurfaceTools returns show_table, show_stats and request_approval bound to
// host. Their input schemas are the surface schemas.
func SurfaceTools(host Surfaces) ([]Tool, error) {
	defs := []surfaceTool{
		{
			name:        ShowTableName,
			description: "Render a sortable data table in the chat. Prefer this over listing rows in text.",
			kind:        schema.SurfaceDataTable,
		},
		{
			name:        ShowStatsName,
			description: "Render a panel of key figures with optional deltas and sparklines.",
			kind:        schema.SurfaceStats,
		},
		{
			name:        RequestApprovalName,
			description: "Ask the user to choose one of the given actions and wait for the choice. Returns the chosen action id.",
			kind:        schema.SurfaceApproval,
			await:       true,
		},
	}
	out := make([]Tool, 0, len(defs))
	for _, d := range defs {
		s, err := schema.ToolInputSchema(d.kind)
		if err != nil {
			return nil, fmt.Errorf("%s schema: %w", d.name, err)
		}
		d.schema = s
		d.host = host
		out = append(out, d)
	}
	return out, nil
}

func (t surfaceTool) Name() string            { return t.name }
func (t surfaceTool) Description() string     { return t.description }
func (t surfaceTool) Schema() json.RawMessage { return t.schema }

func (t surfaceTool) Execute(ctx context.Context, params json.RawMessage) (Result, error) {
	raw, err := t.prepare(params)
	if err != nil {
		return Result{}, err
	}
	e, err := t.host.Add(ctx, raw)
	if err != nil {
		return Result{}, err
	}
	if !t.await {
		return Result{Content: "rendered surface " + e.ID, SurfaceID: e.ID}, nil
	}

	logx.WithSurface(logx.Ctx(ctx), e.ID, string(e.Kind)).Info("awaiting user decision")
	actionID, err := t.host.Await(ctx, e.ID)
	if err != nil {
		return Result{SurfaceID: e.ID}, err
	}
	return Result{Content: actionID, SurfaceID: e.ID}, nil
}

// prepare fills in the discriminator and a generated id when the model left
// them out.
func (t surfaceTool) prepare(params json.RawMessage) ([]byte, error) {
	raw := bytes.TrimSpace(params)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	var err error
	switch got := gjson.GetBytes(raw, "surface"); {
	case !got.Exists():
		if raw, err = sjson.SetBytes(raw, "surface", string(t.kind)); err != nil {
			return nil, err
		}
	case got.String() != string(t.kind):
		return nil, fmt.Errorf("%s renders %q surfaces, got %q", t.name, t.kind, got.String())
	}
	if gjson.GetBytes(raw, "id").String() == "" {
		id := string(t.kind) + "-" + uuid.NewString()[:8]
		if raw, err = sjson.SetBytes(raw, "id", id); err != nil {
			return nil, err
		}
	}
	return raw, nil
}
