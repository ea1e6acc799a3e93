package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeTool struct {
	name string
	run  func(ctx context.Context, params json.RawMessage) (Result, error)
}

func (f fakeTool) Name() string { return f.name }

func (f fakeTool) Description() string { return "fake " + f.name }

func (f fakeTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (f fakeTool) Execute(ctx context.Context, params json.RawMessage) (Result, error) {
	if f.run == nil {
		return Result{}, nil
	}
	return f.run(ctx, params)
}

func TestRegistryExecute(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(fakeTool{
		name: "echo",
		run: func(_ context.Context, params json.RawMessage) (Result, error) {
			return Result{Content: string(params)}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	got, err := reg.Execute(context.Background(), " echo ", json.RawMessage(`{"x":"y"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got.Content != `{"x":"y"}` {
		t.Fatalf("Execute().Content = %q, want JSON input echo", got.Content)
	}

	if _, err := reg.Execute(context.Background(), "missing", nil); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("Execute(missing) error = %v, want ErrToolNotFound", err)
	}
}

func TestRegistryRejectsBadTools(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(fakeTool{name: "a"}, fakeTool{name: "a"}); !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("duplicate error = %v, want ErrToolAlreadyRegistered", err)
	}
	reg, _ := NewRegistry()
	if err := reg.Register(nil); !errors.Is(err, ErrToolRequired) {
		t.Fatalf("nil tool error = %v", err)
	}
	if err := reg.Register(fakeTool{name: "  "}); !errors.Is(err, ErrToolNameRequired) {
		t.Fatalf("blank name error = %v", err)
	}
}

func TestRegistrySpecsAreSorted(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(fakeTool{name: "show_table"}, fakeTool{name: "request_approval"}, fakeTool{name: "show_stats"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	specs := reg.Specs()
	want := []string{"request_approval", "show_stats", "show_table"}
	for i, name := range want {
		if specs[i].Name != name {
			t.Fatalf("Specs()[%d] = %q, want %q", i, specs[i].Name, name)
		}
	}
	if specs[0].Description != "fake request_approval" || string(specs[0].Schema) != `{"type":"object"}` {
		t.Fatalf("Specs()[0] = %+v", specs[0])
	}
}
