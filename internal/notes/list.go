package notes

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"notebot/internal/reminder"
	"notebot/internal/transport"
	"notebot/internal/transport/telegram/router"
	"notebot/pkg/tgui"
)

func greeting(name string) string {
	b := tgui.New().
		Title("👋", "Hi, "+name+"!").
		Line("I keep your notes and remind you about them.").
		Blank().
		Section("Saving").
		Bullets(
			"Send any text to save it as a note.",
			"Add #tags to categorize it.",
			"Add @HH:MM DD-MM-YYYY or @DD-MM-YYYY (09:00) to get a reminder.",
			"Example: dentist #health @14:30 05-03-2026",
		).
		Blank().
		Section("Commands").
		Bullets(
			"/find #tag - find notes by tag",
			"/all - show all your notes",
			"/upcoming - reminders due soon",
			"/compose - create a reminder step by step",
			"/help - list every command",
		)
	return b.Build().Text
}

func (h *Handler) cmdFind(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		_, err := req.Reply(ctx, "Please give a tag to search for. Example: /find #important")
		return err
	}
	tag := strings.ToLower(req.Args[0])
	if !strings.HasPrefix(tag, "#") || len(tag) < 2 {
		_, err := req.Reply(ctx, "The tag must start with '#'. Example: /find #important")
		return err
	}
	recs, err := h.store.FindByOwnerAndTag(ctx, req.Chat.ChatID, tag)
	if err != nil {
		_, _ = req.Reply(ctx, replySaveFailed)
		return err
	}
	if len(recs) == 0 {
		_, err := req.Reply(ctx, fmt.Sprintf("No notes tagged '%s'.", tag))
		return err
	}
	b := tgui.New().Title("🔎", fmt.Sprintf("Notes tagged %s", tag))
	shown := recs
	if len(shown) > maxFindResults {
		shown = shown[:maxFindResults]
	}
	h.writeList(b, shown, 0)
	if rest := len(recs) - len(shown); rest > 0 {
		b.Line(fmt.Sprintf("…and %d more.", rest))
	}
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (h *Handler) cmdAll(ctx context.Context, req *router.Request) error {
	msg, err := h.allPage(ctx, req.Chat.ChatID, 0)
	if err != nil {
		_, _ = req.Reply(ctx, replySaveFailed)
		return err
	}
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (h *Handler) cbPage(ctx context.Context, req *router.Request) (string, error) {
	page, err := strconv.Atoi(req.Payload)
	if err != nil || page < 0 {
		return "", nil
	}
	msg, err := h.allPage(ctx, req.Chat.ChatID, page)
	if err != nil {
		return replySaveFailed, err
	}
	ref := transport.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID}
	return "", msg.Edit(ctx, req.Adapter, ref)
}

// allPage renders one page of the owner's notes with prev/next buttons.
func (h *Handler) allPage(ctx context.Context, owner int64, page int) (tgui.Message, error) {
	recs, err := h.store.FindAllByOwner(ctx, owner)
	if err != nil {
		return tgui.Message{}, err
	}
	b := tgui.New()
	if len(recs) == 0 {
		return b.Line("You have no notes yet.").Build(), nil
	}
	p := tgui.Paginate(len(recs), page, h.cfg.PageSize)
	b.Title("📒", "All your notes").Line(p.Label()).Blank()
	h.writeList(b, tgui.Slice(recs, p), p.From)
	if nav := p.Nav(Namespace, actPage); nav != nil {
		b.Inline(nav)
	}
	return b.Build(), nil
}

func (h *Handler) cmdUpcoming(ctx context.Context, req *router.Request) error {
	recs, err := h.store.FindAllByOwner(ctx, req.Chat.ChatID)
	if err != nil {
		_, _ = req.Reply(ctx, replySaveFailed)
		return err
	}
	now := h.now()
	until := now.Add(h.cfg.Upcoming)
	var due []reminder.Record
	for _, r := range recs {
		if r.DueAt != nil && !r.Delivered && !r.DueAt.Before(now) && !r.DueAt.After(until) {
			due = append(due, r)
		}
	}
	if len(due) == 0 {
		_, err := req.Reply(ctx, "No reminders due in the next "+humanWindow(h.cfg.Upcoming)+".")
		return err
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].DueAt.Equal(*due[j].DueAt) {
			return due[i].DueAt.Before(*due[j].DueAt)
		}
		return due[i].ID < due[j].ID
	})
	b := tgui.New().Title("⏰", "Due in the next "+humanWindow(h.cfg.Upcoming))
	h.writeList(b, due, 0)
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

// writeList adds numbered entries starting at offset+1.
func (h *Handler) writeList(b *tgui.Builder, recs []reminder.Record, offset int) {
	for i, r := range recs {
		line := strconv.Itoa(offset+i+1) + ". " + tgui.Snippet(r.Body, maxBodyRunes)
		if tags := reminder.FormatTags(r.Tags); tags != "" {
			line += " (" + tags + ")"
		}
		if r.DueAt != nil {
			line += " ⏰ " + reminder.FormatDue(*r.DueAt, h.cfg.Location)
			if r.Delivered {
				line += " ✓"
			}
		}
		b.Line(line)
	}
}

func humanWindow(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d > day && d%day == 0:
		return strconv.Itoa(int(d/day)) + " days"
	case d == time.Hour:
		return "hour"
	case d%time.Hour == 0:
		return strconv.Itoa(int(d/time.Hour)) + " hours"
	}
	return d.String()
}
