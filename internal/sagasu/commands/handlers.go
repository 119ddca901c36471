package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/Sagasu/common/trace"
	"github.com/bdobrica/Sagasu/common/version"
	"github.com/bdobrica/Sagasu/internal/sagasu/intent"
	"github.com/bdobrica/Sagasu/internal/sagasu/pending"
	"github.com/bdobrica/Sagasu/internal/sagasu/query"
	"github.com/bdobrica/Sagasu/internal/sagasu/report"
	"github.com/bdobrica/Sagasu/internal/sagasu/sonar"
)

// Responder abstracts the chat surface the handlers speak through, so the
// handlers can be tested without a homeserver.
type Responder interface {
	Reply(roomID, eventID, message string) error
	ReplyHTML(roomID, html, plaintext string) error
	Notice(roomID, message string) error
	UploadCSV(roomID, filename string, data []byte) error
	Typing(roomID string, on bool)
}

const usageMessage = `Ask me about the inventory, for example:
• /asset George Li — what is George holding?
• /asset george.li@example.com — full asset details by email
• /asset TW012 — look up an asset tag or serial number
• /asset License will expire within 30 days
• /asset 公司有哪些授權 60 天內到期?
• /asset old laptops over 4 years
• /asset devices in TW

Type /asset help for the full list.`

// Handlers holds all command handlers and dependencies
type Handlers struct {
	classifier *intent.Classifier
	agg        *query.Aggregator
	pending    *pending.Store
	resp       Responder

	// async moves aggregation off the sync loop; tests run synchronously.
	async bool
}

// NewHandlers creates a new Handlers instance
func NewHandlers(classifier *intent.Classifier, agg *query.Aggregator, pend *pending.Store, resp Responder) *Handlers {
	return &Handlers{
		classifier: classifier,
		agg:        agg,
		pending:    pend,
		resp:       resp,
		async:      true,
	}
}

// HandleQuery classifies free text and runs the matching aggregation.  The
// sync loop must not block on inventory pagination, so the fetch runs in a
// goroutine and the reply is delivered when it finishes.
func (h *Handlers) HandleQuery(ctx context.Context, cmd *Command, evt *event.Event) error {
	text := strings.TrimSpace(cmd.RawText)
	if text == "" {
		return h.resp.Reply(evt.RoomID.String(), evt.ID.String(), usageMessage)
	}

	traceID := trace.GenerateID()
	q := h.classifier.Classify(trace.WithTraceID(ctx, traceID), text)
	slog.Info("query classified", "trace_id", traceID, "kind", q.Kind, "text", text)

	roomID := evt.RoomID.String()
	sender := evt.Sender.String()

	// Acknowledge right away; pagination over a large fleet can take a while
	// and the result arrives as a follow-up message.
	if err := h.resp.Notice(roomID, "Looking that up…"); err != nil {
		slog.Error("failed to send acknowledgment", "trace_id", traceID, "room", roomID, "err", err)
	}
	h.resp.Typing(roomID, true)

	run := func() {
		// The sync context is gone by the time an async fetch completes.
		runCtx := trace.WithTraceID(context.Background(), traceID)
		defer h.resp.Typing(roomID, false)
		defer h.recoverPanic(roomID, traceID)

		out, err := h.agg.Run(runCtx, q)
		if err != nil {
			slog.Error("aggregation failed", "trace_id", traceID, "kind", q.Kind, "err", err)
			h.failNotice(roomID, traceID, err)
			return
		}
		h.deliver(roomID, sender, out)
	}

	if h.async {
		go run()
	} else {
		run()
	}
	return nil
}

// HandlePick resumes a paused lookup with the candidate the user chose.
func (h *Handlers) HandlePick(ctx context.Context, cmd *Command, evt *event.Event) error {
	roomID := evt.RoomID.String()
	sender := evt.Sender.String()

	arg, ok := cmd.GetArg(0)
	if !ok {
		return h.resp.Notice(roomID, "Usage: /asset pick <number>")
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return h.resp.Notice(roomID, "Usage: /asset pick <number>")
	}

	sel, original, err := h.pending.Take(roomID, sender, n)
	switch {
	case errors.Is(err, pending.ErrNoPending):
		return h.resp.Notice(roomID, "Nothing to pick from. Run your query again.")
	case errors.Is(err, pending.ErrBadChoice):
		return h.resp.Notice(roomID, fmt.Sprintf("%d is not on the list. Pick one of the listed numbers.", n))
	case err != nil:
		return err
	}

	traceID := trace.GenerateID()
	slog.Info("disambiguation resolved", "trace_id", traceID, "member_id", sel.ID, "query", original)
	if err := h.resp.Notice(roomID, "Looking that up…"); err != nil {
		slog.Error("failed to send acknowledgment", "trace_id", traceID, "room", roomID, "err", err)
	}
	h.resp.Typing(roomID, true)

	run := func() {
		runCtx := trace.WithTraceID(context.Background(), traceID)
		defer h.resp.Typing(roomID, false)
		defer h.recoverPanic(roomID, traceID)

		assets, err := h.agg.PossessionsOf(runCtx, sel.ID)
		if err != nil {
			slog.Error("possessions fetch failed", "trace_id", traceID, "member_id", sel.ID, "err", err)
			h.failNotice(roomID, traceID, err)
			return
		}
		out := &query.Outcome{
			Query:  intent.Lookup(original),
			Member: &sonar.Member{ID: sel.ID, FullName: sel.Name, Email: sel.Email},
			Assets: assets,
		}
		h.deliver(roomID, sender, out)
	}

	if h.async {
		go run()
	} else {
		run()
	}
	return nil
}

// HandleHelp shows available commands
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command, evt *event.Event) error {
	help := `**Sagasu Inventory Assistant**

Ask in plain English or Chinese, prefixed with /asset:

**People and assets:**
• /asset <name> - Assets assigned to a person (e.g. /asset George Li)
• /asset <email> - Full asset details for a person by email
• /asset <tag or serial> - Look up one asset (e.g. /asset TW012)
• /asset pick <n> - Choose from a list of matching people

**Fleet queries:**
• /asset License will expire within 30 days (授權 30 天內到期)
• /asset old laptops over 3 years (超過 3 年的筆電)
• /asset devices in TW
• /asset assets in group Engineering
• /asset assets from Lenovo
• /asset assets older than 5 years

**General:**
• /asset help - Show this help message
• /asset version - Show version information
• /asset ping - Health check

Results with more than 10 records arrive as a CSV attachment.`
	return h.resp.Reply(evt.RoomID.String(), evt.ID.String(), help)
}

// HandleVersion shows version information
func (h *Handlers) HandleVersion(ctx context.Context, cmd *Command, evt *event.Event) error {
	msg := fmt.Sprintf("**Sagasu Inventory Assistant**\nVersion: %s\nCommit: %s\nBuild Time: %s",
		version.Version, version.GitCommit, version.BuildTime)
	return h.resp.Reply(evt.RoomID.String(), evt.ID.String(), msg)
}

// HandlePing responds with a health check
func (h *Handlers) HandlePing(ctx context.Context, cmd *Command, evt *event.Event) error {
	traceID := trace.GenerateID()
	return h.resp.Reply(evt.RoomID.String(), evt.ID.String(), "🏓 Pong! (trace: "+traceID+")")
}

// deliver turns an aggregation outcome into chat messages: either a numbered
// candidate list that pauses the pipeline, or rendered result blocks plus an
// optional CSV attachment.
func (h *Handlers) deliver(roomID, sender string, out *query.Outcome) {
	if out.NeedsDisambiguation() {
		h.deliverCandidates(roomID, sender, out)
		return
	}

	title := resultTitle(out)
	var fields []string
	var rows [][]string
	if out.Query.Kind == intent.KindLicenseExpiry {
		fields = report.LicenseFields
		rows = report.LicenseRows(out.Licenses)
	} else {
		fields = report.DefaultAssetFields
		if out.Query.AllFields {
			fields = report.FullAssetFields
		}
		rows = report.AssetRows(out.Assets, fields)
	}

	blocks, export := report.Present(title, fields, rows)
	if err := h.resp.ReplyHTML(roomID, report.RenderHTML(blocks), report.RenderText(blocks)); err != nil {
		slog.Error("failed to send result", "room", roomID, "err", err)
		return
	}

	if export == nil {
		return
	}
	data, err := report.EncodeCSV(export)
	if err != nil {
		slog.Error("failed to encode CSV", "room", roomID, "err", err)
		h.resp.Notice(roomID, "Could not build the CSV export.")
		return
	}
	if err := h.resp.UploadCSV(roomID, export.Filename, data); err != nil {
		slog.Error("failed to upload CSV", "room", roomID, "err", err)
		h.resp.Notice(roomID, "Could not attach the CSV export.")
	}
}

// deliverCandidates parks the ranked candidates and asks the user to choose.
func (h *Handlers) deliverCandidates(roomID, sender string, out *query.Outcome) {
	selections := make([]pending.Selection, 0, len(out.Candidates))
	lines := make([]string, 0, len(out.Candidates))
	for i, c := range out.Candidates {
		name := strings.TrimSpace(c.FirstName + " " + c.LastName)
		selections = append(selections, pending.Selection{ID: c.ID, Name: name, Email: c.Email})
		line := fmt.Sprintf("%d. %s", i+1, name)
		if c.Email != "" {
			line += " <" + c.Email + ">"
		}
		lines = append(lines, line)
	}

	h.pending.Put(roomID, sender, out.Query.Text, selections)

	blocks := []report.Block{
		{Title: fmt.Sprintf("Found %d people matching %q", len(out.Candidates), out.Query.Text)},
		{Lines: lines},
		{Lines: []string{"Reply with /asset pick <number> to choose."}},
	}
	if err := h.resp.ReplyHTML(roomID, report.RenderHTML(blocks), report.RenderText(blocks)); err != nil {
		slog.Error("failed to send candidate list", "room", roomID, "err", err)
	}
}

// resultTitle names the result set after what was asked.
func resultTitle(out *query.Outcome) string {
	q := out.Query
	switch q.Kind {
	case intent.KindLicenseExpiry:
		return fmt.Sprintf("Licenses expiring within %d days", q.Days)
	case intent.KindOldLaptops:
		return fmt.Sprintf("Laptops older than %d years", q.Years)
	case intent.KindLocationAssets:
		return "Assets at " + q.Location
	case intent.KindGroupAssets:
		return "Assets in group " + q.Group
	case intent.KindVendorAssets:
		return "Assets from " + q.Vendor
	case intent.KindAgeAssets:
		return fmt.Sprintf("Assets older than %d years", q.Years)
	default:
		if out.Member != nil {
			return "Assets assigned to " + out.Member.DisplayName()
		}
		return fmt.Sprintf("Results for %q", q.Text)
	}
}

// failNotice reports an aggregation failure to the room, with status detail
// when the remote API answered with an error.
func (h *Handlers) failNotice(roomID, traceID string, err error) {
	var apiErr *sonar.APIError
	if errors.As(err, &apiErr) {
		h.resp.Notice(roomID, fmt.Sprintf("Query failed: inventory API returned HTTP %d. (trace: %s)", apiErr.Status, traceID))
		return
	}
	h.resp.Notice(roomID, "Query failed, please try again later. (trace: "+traceID+")")
}

// recoverPanic keeps a panicking aggregation from killing the process and
// tells the room something went wrong.
func (h *Handlers) recoverPanic(roomID, traceID string) {
	if r := recover(); r != nil {
		slog.Error("query handler panicked", "trace_id", traceID, "panic", r)
		h.resp.Notice(roomID, "Query failed, please try again later. (trace: "+traceID+")")
	}
}

// RegisterAll wires the reserved subcommands and the free-text fallback into
// the router.
func (h *Handlers) RegisterAll(router *Router) {
	router.Register("pick", h.HandlePick)
	router.Register("help", h.HandleHelp)
	router.Register("version", h.HandleVersion)
	router.Register("ping", h.HandlePing)
	router.Default(h.HandleQuery)
}

// TypingTimeout is how long a typing indicator is allowed to linger.
const TypingTimeout = 30 * time.Second
