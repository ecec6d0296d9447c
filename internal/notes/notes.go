// Package notes turns chat traffic into notes and reminders: free text goes
// through the parser into the store, commands list and search what was saved,
// and /compose hands over to the reminder dialog.
package notes

import (
	"context"
	"strconv"
	"strings"
	"time"

	"notebot/internal/dialog"
	"notebot/internal/reminder"
	"notebot/internal/transport"
	"notebot/internal/transport/telegram/router"
	logx "notebot/pkg/logx"
)

const (
	Namespace = "notes"
	actPage   = "page"

	DefaultPageSize = 10
	DefaultUpcoming = 24 * time.Hour
	maxFindResults  = 100
	maxBodyRunes    = 300
)

type Config struct {
	Location *time.Location
	PageSize int
	Upcoming time.Duration // window of /upcoming
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Upcoming <= 0 {
		c.Upcoming = DefaultUpcoming
	}
	return c
}

// Store is the part of storage.Store the handlers use.
type Store interface {
	Create(ctx context.Context, owner int64, body string, tags []string, dueAt *time.Time) (reminder.Record, error)
	FindByOwnerAndTag(ctx context.Context, owner int64, tag string) ([]reminder.Record, error)
	FindAllByOwner(ctx context.Context, owner int64) ([]reminder.Record, error)
}

// Dialogs is the reminder dialog controller.
type Dialogs interface {
	Begin(ctx context.Context, key dialog.Key, destination int64, trigger int) dialog.Session
	HandleText(ctx context.Context, m transport.Message) bool
	HandleCallback(ctx context.Context, from, chat int64, messageID int, action, payload string) string
	Cancel(ctx context.Context, user, chat int64) bool
}

type Handler struct {
	cfg     Config
	store   Store
	dialogs Dialogs
	log     logx.Logger
	now     func() time.Time
}

func New(cfg Config, store Store, dialogs Dialogs, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{cfg: cfg.withDefaults(), store: store, dialogs: dialogs, log: log, now: time.Now}
}

func (h *Handler) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "greeting and quick guide",
			Handle:      h.cmdStart,
		},
		{
			Name:        "find",
			Description: "find your notes by tag",
			Usage:       "/find #tag",
			Handle:      h.cmdFind,
		},
		{
			Name:        "all",
			Aliases:     []string{"all_notes"},
			Description: "list all your notes",
			Usage:       "/all",
			Handle:      h.cmdAll,
		},
		{
			Name:        "upcoming",
			Description: "reminders due soon",
			Usage:       "/upcoming",
			Handle:      h.cmdUpcoming,
		},
		{
			Name:        "compose",
			Aliases:     []string{"remind"},
			Description: "create a reminder step by step",
			Usage:       "/compose [chat_id]",
			Handle:      h.cmdCompose,
		},
		{
			Name:        "cancel",
			Description: "cancel the reminder being composed",
			Handle:      h.cmdCancel,
		},
	}
}

func (h *Handler) Callbacks() []router.CallbackRoute {
	routes := []router.CallbackRoute{{Namespace: Namespace, Action: actPage, Handle: h.cbPage}}
	if h.dialogs == nil {
		return routes
	}
	for _, act := range dialog.Actions() {
		routes = append(routes, router.CallbackRoute{
			Namespace: dialog.Namespace,
			Action:    act,
			Handle: func(ctx context.Context, req *router.Request) (string, error) {
				return h.dialogs.HandleCallback(ctx, req.FromID, req.Chat.ChatID, req.MessageID, req.Action, req.Payload), nil
			},
		})
	}
	return routes
}

func (h *Handler) cmdStart(ctx context.Context, req *router.Request) error {
	name := "there"
	if req.Message != nil && req.Message.FromUsername != "" {
		name = "@" + req.Message.FromUsername
	}
	_, err := req.ReplyHTML(ctx, greeting(name))
	return err
}

func (h *Handler) cmdCompose(ctx context.Context, req *router.Request) error {
	if h.dialogs == nil {
		_, err := req.Reply(ctx, "Reminder composing is disabled.")
		return err
	}
	dest := req.Chat.ChatID
	if len(req.Args) > 0 {
		id, err := strconv.ParseInt(strings.TrimSpace(req.Args[0]), 10, 64)
		if err != nil || id == 0 {
			_, err := req.Reply(ctx, "Usage: /compose [chat_id], e.g. /compose -1001234567890")
			return err
		}
		dest = id
	}
	trigger := 0
	if req.Message != nil {
		trigger = req.Message.ID
	}
	s := h.dialogs.Begin(ctx, dialog.Key{User: req.FromID, Chat: req.Chat.ChatID}, dest, trigger)
	req.Logger.Debug("compose started", logx.String("dialog", s.ID), logx.Int64("destination", dest))
	return nil
}

func (h *Handler) cmdCancel(ctx context.Context, req *router.Request) error {
	if h.dialogs != nil && h.dialogs.Cancel(ctx, req.FromID, req.Chat.ChatID) {
		return nil
	}
	_, err := req.Reply(ctx, "Nothing to cancel.")
	return err
}
