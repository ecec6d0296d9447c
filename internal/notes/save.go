package notes

import (
	"context"
	"errors"
	"strings"

	"notebot/internal/reminder"
	"notebot/internal/transport/telegram/router"
	logx "notebot/pkg/logx"
)

const (
	replySaved      = "Note saved!"
	replyBadDate    = "Invalid date/time for the reminder. Use @HH:MM DD-MM-YYYY or @DD-MM-YYYY."
	replyEmptyBody  = "Please enter the note text."
	replySaveFailed = "Could not save the note right now. Please try again later."
	notePastDue     = "Heads up: that time has already passed."
)

// HandleText is the router's free-text handler.
//
// An active dialog in that chat takes the message first. Otherwise the
// text becomes a note owned by the chat it was posted in. Channel and group
// posts are only kept when they carry at least one tag; private chats are
// always eligible. Confirmations are not posted into channels.
func (h *Handler) HandleText(ctx context.Context, req *router.Request) error {
	m := req.Message
	if m == nil {
		return nil
	}
	if h.dialogs != nil && h.dialogs.HandleText(ctx, *m) {
		return nil
	}
	if !m.IsPrivate && len(reminder.ExtractTags(m.Text)) == 0 {
		return nil
	}

	reply := func(text string) error {
		if m.IsChannel {
			return nil
		}
		_, err := req.Reply(ctx, text)
		return err
	}

	p, err := reminder.Parse(m.Text, h.cfg.Location)
	switch {
	case errors.Is(err, reminder.ErrMalformedDateTime):
		req.Logger.Debug("note rejected", logx.Err(err))
		return reply(replyBadDate)
	case errors.Is(err, reminder.ErrEmptyBody):
		return reply(replyEmptyBody)
	case err != nil:
		return err
	}

	rec, err := h.store.Create(ctx, m.ChatID, p.Body, p.Tags, p.DueAt)
	if err != nil {
		if errors.Is(err, reminder.ErrValidation) {
			return reply(replyEmptyBody)
		}
		req.Logger.Error("note save failed", logx.Err(err))
		_ = reply(replySaveFailed)
		return err
	}
	req.Logger.Info("note saved",
		logx.Int64("id", rec.ID),
		logx.Int("tags", len(rec.Tags)),
		logx.Bool("reminder", rec.IsReminder()),
	)
	return reply(h.savedText(rec))
}

func (h *Handler) savedText(r reminder.Record) string {
	lines := []string{replySaved}
	if len(r.Tags) > 0 {
		lines = append(lines, "Tags: #"+strings.Join(r.Tags, ", #"))
	}
	if r.DueAt != nil {
		lines = append(lines, "Reminder set for: "+reminder.FormatDue(*r.DueAt, h.cfg.Location))
		if r.DueAt.Before(h.now()) {
			lines = append(lines, notePastDue)
		}
	}
	return strings.Join(lines, "\n")
}
