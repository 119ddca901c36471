// Package commands provides command parsing and routing for Sagasu
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"maunium.net/go/mautrix/event"
)

// Command represents a parsed command.  Most Sagasu messages are free-text
// inventory queries, so RawText carries everything after the prefix with its
// original casing; Subcommand and Args are only meaningful when the first
// word matches a registered subcommand.
type Command struct {
	Subcommand string
	Args       []string
	RawText    string
}

// ErrNotACommand is returned by Parse when the message does not start with the
// command prefix. Callers should use errors.Is to distinguish this expected
// case from real errors.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// Handler is a function that handles a command
type Handler func(ctx context.Context, cmd *Command, evt *event.Event) error

// Router routes commands to handlers.  Messages whose first word is a
// registered subcommand go to that handler; everything else goes to the
// fallback, which treats the whole text as a query.
type Router struct {
	handlers map[string]Handler
	fallback Handler
	prefix   string
}

// NewRouter creates a new command router
func NewRouter(prefix string) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
	}
}

// Register registers a reserved subcommand handler
func (r *Router) Register(subcommand string, handler Handler) {
	r.handlers[strings.ToLower(subcommand)] = handler
}

// Default registers the fallback handler for free-text queries
func (r *Router) Default(handler Handler) {
	r.fallback = handler
}

// Parse parses a message into a command
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)

	// Check if message starts with our prefix
	if !strings.HasPrefix(text, r.prefix) {
		return nil, ErrNotACommand
	}

	// Remove prefix
	text = strings.TrimSpace(strings.TrimPrefix(text, r.prefix))

	cmd := &Command{
		Args:    []string{},
		RawText: text,
	}

	parts := strings.Fields(text)
	if len(parts) > 0 {
		cmd.Subcommand = strings.ToLower(parts[0])
		cmd.Args = parts[1:]
	}

	return cmd, nil
}

// Route parses and routes a command to its handler
func (r *Router) Route(ctx context.Context, text string, evt *event.Event) error {
	cmd, err := r.Parse(text)
	if err != nil {
		return err
	}

	if handler, ok := r.handlers[cmd.Subcommand]; ok {
		return handler(ctx, cmd, evt)
	}

	if r.fallback == nil {
		return fmt.Errorf("unknown command: %s", cmd.Subcommand)
	}
	return r.fallback(ctx, cmd, evt)
}

// GetArg returns an argument by index
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}
