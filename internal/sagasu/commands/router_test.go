package commands

import (
	"context"
	"errors"
	"testing"

	"maunium.net/go/mautrix/event"
)

func TestParseRequiresPrefix(t *testing.T) {
	r := NewRouter("/asset")

	for _, text := range []string{"hello", "asset George", "/other George"} {
		if _, err := r.Parse(text); !errors.Is(err, ErrNotACommand) {
			t.Errorf("Parse(%q) err = %v, want ErrNotACommand", text, err)
		}
	}
}

func TestParseFreeText(t *testing.T) {
	r := NewRouter("/asset")

	cmd, err := r.Parse("  /asset License will expire within 30 days  ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.RawText != "License will expire within 30 days" {
		t.Fatalf("RawText = %q", cmd.RawText)
	}
	if cmd.Subcommand != "license" {
		t.Fatalf("Subcommand = %q", cmd.Subcommand)
	}
}

func TestParseEmpty(t *testing.T) {
	r := NewRouter("/asset")

	cmd, err := r.Parse("/asset")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.RawText != "" || cmd.Subcommand != "" || len(cmd.Args) != 0 {
		t.Fatalf("expected empty command, got %+v", cmd)
	}
}

func TestRouteReservedSubcommand(t *testing.T) {
	r := NewRouter("/asset")

	var picked *Command
	r.Register("pick", func(ctx context.Context, cmd *Command, evt *event.Event) error {
		picked = cmd
		return nil
	})
	r.Default(func(ctx context.Context, cmd *Command, evt *event.Event) error {
		t.Fatal("fallback should not run for a reserved subcommand")
		return nil
	})

	if err := r.Route(context.Background(), "/asset PICK 2", nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if picked == nil {
		t.Fatal("pick handler not called")
	}
	if got, _ := picked.GetArg(0); got != "2" {
		t.Fatalf("arg = %q, want 2", got)
	}
}

func TestRouteFallbackKeepsCasing(t *testing.T) {
	r := NewRouter("/asset")

	var got string
	r.Default(func(ctx context.Context, cmd *Command, evt *event.Event) error {
		got = cmd.RawText
		return nil
	})

	if err := r.Route(context.Background(), "/asset George Li", nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "George Li" {
		t.Fatalf("RawText = %q, want original casing", got)
	}
}

func TestRouteNoFallback(t *testing.T) {
	r := NewRouter("/asset")

	if err := r.Route(context.Background(), "/asset whatever", nil); err == nil {
		t.Fatal("expected error with no fallback registered")
	}
}

func TestGetArg(t *testing.T) {
	cmd := &Command{Args: []string{"1", "2"}}

	if v, ok := cmd.GetArg(1); !ok || v != "2" {
		t.Fatalf("GetArg(1) = %q, %v", v, ok)
	}
	if _, ok := cmd.GetArg(2); ok {
		t.Fatal("GetArg(2) should be out of range")
	}
	if _, ok := cmd.GetArg(-1); ok {
		t.Fatal("GetArg(-1) should be out of range")
	}
}
