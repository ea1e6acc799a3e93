package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"loom/internal/toolui/schema"
	"loom/internal/toolui/surface"
)

func surfaceRegistry(t *testing.T, host *surface.Host) *Registry {
	t.Helper()
	list, err := SurfaceTools(host)
	if err != nil {
		t.Fatalf("SurfaceTools() error = %v", err)
	}
	reg, err := NewRegistry(list...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func TestSurfaceToolSchemasAreSurfaceSchemas(t *testing.T) {
	t.Parallel()

	reg := surfaceRegistry(t, surface.NewHost())
	for _, spec := range reg.Specs() {
		if got := gjson.GetBytes(spec.Schema, "type").String(); got != "object" {
			t.Fatalf("%s schema type = %q", spec.Name, got)
		}
		if gjson.GetBytes(spec.Schema, "$schema").Exists() {
			t.Fatalf("%s schema keeps $schema", spec.Name)
		}
	}
	table, _ := reg.Get(ShowTableName)
	if !gjson.GetBytes(table.Schema(), "properties.columns").Exists() {
		t.Fatalf("show_table schema lacks columns: %s", table.Schema())
	}
}

func TestShowTablePublishesSurface(t *testing.T) {
	t.Parallel()

	host := surface.NewHost()
	reg := surfaceRegistry(t, host)
	args := json.RawMessage(`{"id":"late","columns":[{"key":"sku","label":"SKU"}],"data":[{"sku":"A-10"}]}`)

	res, err := reg.Execute(context.Background(), ShowTableName, args)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Content != "rendered surface late" || res.SurfaceID != "late" {
		t.Fatalf("Execute() = %+v", res)
	}
	e, ok := host.Get("late")
	if !ok || e.Kind != schema.SurfaceDataTable {
		t.Fatalf("surface not published: %+v", e)
	}
	if got := gjson.GetBytes(e.Raw(), "surface").String(); got != "data-table" {
		t.Fatalf("stored discriminator = %q", got)
	}
}

func TestShowStatsGeneratesMissingID(t *testing.T) {
	t.Parallel()

	host := surface.NewHost()
	res, err := surfaceRegistry(t, host).Execute(context.Background(), ShowStatsName,
		json.RawMessage(`{"stats":[{"key":"pieces","label":"Pieces","value":4120}]}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(res.SurfaceID, "stats-display-") {
		t.Fatalf("generated id = %q", res.SurfaceID)
	}
	if host.Len() != 1 {
		t.Fatalf("host.Len() = %d", host.Len())
	}
}

func TestSurfaceToolRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	host := surface.NewHost()
	reg := surfaceRegistry(t, host)

	_, err := reg.Execute(context.Background(), ShowTableName, json.RawMessage(`{"id":"t","columns":[]}`))
	if !errors.Is(err, schema.ErrInvalidPayload) {
		t.Fatalf("Execute() error = %v, want ErrInvalidPayload", err)
	}
	if !strings.HasPrefix(err.Error(), "invalid data-table payload: ") {
		t.Fatalf("error text = %q", err.Error())
	}

	_, err = reg.Execute(context.Background(), ShowTableName, json.RawMessage(`{"surface":"approval","id":"x"}`))
	if err == nil || !strings.Contains(err.Error(), `renders "data-table" surfaces`) {
		t.Fatalf("mismatched surface error = %v", err)
	}
	if _, err := reg.Execute(context.Background(), ShowTableName, json.RawMessage(`[1,2]`)); err == nil {
		t.Fatalf("expected error for non-object arguments")
	}
	if host.Len() != 0 {
		t.Fatalf("invalid payloads were stored")
	}
}

func TestRequestApprovalWaitsForDecision(t *testing.T) {
	t.Parallel()

	added := make(chan string, 1)
	host := surface.NewHost(surface.OnChange(func(id string) {
		select {
		case added <- id:
		default:
		}
	}))
	reg := surfaceRegistry(t, host)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := reg.Execute(context.Background(), RequestApprovalName, json.RawMessage(
			`{"id":"payroll","title":"Run payroll?","actions":[{"id":"cancel","label":"Not now"},{"id":"run","label":"Run"}]}`))
		done <- outcome{res, err}
	}()

	select {
	case id := <-added:
		if id != "payroll" {
			t.Fatalf("added surface = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("approval surface was not published")
	}
	if _, err := host.Invoke(context.Background(), "payroll", "run"); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("Execute() error = %v", got.err)
		}
		if got.res.Content != "run" {
			t.Fatalf("Execute().Content = %q, want only the action id", got.res.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("request_approval did not return")
	}
}

func TestRequestApprovalHonoursCancellation(t *testing.T) {
	t.Parallel()

	reg := surfaceRegistry(t, surface.NewHost())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := reg.Execute(ctx, RequestApprovalName, json.RawMessage(
		`{"id":"a","title":"Delete?","actions":[{"id":"delete","label":"Delete"}]}`))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v, want deadline", err)
	}
	if res.SurfaceID != "a" {
		t.Fatalf("SurfaceID = %q", res.SurfaceID)
	}
}

func TestSurfaceKindOf(t *testing.T) {
	t.Parallel()

	tests := map[string]schema.SurfaceKind{
		ShowTableName:       schema.SurfaceDataTable,
		ShowStatsName:       schema.SurfaceStats,
		RequestApprovalName: schema.SurfaceApproval,
	}
	for name, want := range tests {
		if got, ok := SurfaceKindOf(name); !ok || got != want {
			t.Fatalf("SurfaceKindOf(%q) = %q, %v", name, got, ok)
		}
	}
	if _, ok := SurfaceKindOf("bash"); ok {
		t.Fatalf("SurfaceKindOf(bash) reported a surface tool")
	}
}
