package adapter

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestMessageFromTeleChatKinds(t *testing.T) {
	private := messageFromTele(&tele.Message{
		ID:     3,
		Text:   "buy milk",
		Sender: &tele.User{ID: 7, Username: "ann"},
		Chat:   &tele.Chat{ID: 7, Type: tele.ChatPrivate},
	})
	if private == nil || !private.IsPrivate || private.IsChannel || private.FromID != 7 || private.FromUsername != "ann" {
		t.Fatalf("private = %+v", private)
	}

	post := messageFromTele(&tele.Message{
		ID:   4,
		Text: "release #news",
		Chat: &tele.Chat{ID: -1001, Type: tele.ChatChannel},
	})
	if post == nil || !post.IsChannel || post.FromID != 0 {
		t.Fatalf("channel post = %+v", post)
	}

	group := messageFromTele(&tele.Message{
		ID:     5,
		Text:   "hi",
		Sender: &tele.User{ID: 8},
		Chat:   &tele.Chat{ID: -5, Type: tele.ChatSuperGroup},
	})
	if group == nil || !group.IsGroup || group.IsPrivate {
		t.Fatalf("group = %+v", group)
	}
}

func TestMessageFromTeleCaptionAndEmpty(t *testing.T) {
	m := messageFromTele(&tele.Message{Caption: "photo #trip", Chat: &tele.Chat{ID: 1, Type: tele.ChatPrivate}})
	if m == nil || m.Text != "photo #trip" {
		t.Fatalf("caption message = %+v", m)
	}
	if messageFromTele(&tele.Message{Text: "  ", Chat: &tele.Chat{ID: 1}}) != nil {
		t.Fatalf("blank message must be skipped")
	}
	if messageFromTele(&tele.Message{Text: "x"}) != nil {
		t.Fatalf("message without chat must be skipped")
	}
}

func TestSplitTelegramText(t *testing.T) {
	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short = %q", got)
	}
	long := strings.Repeat("line of text\n", 20)
	parts := splitTelegramText(long, 50, "")
	if len(parts) < 2 {
		t.Fatalf("expected several parts, got %d", len(parts))
	}
	for _, p := range parts {
		if len([]rune(p)) > 50 {
			t.Fatalf("part too long: %d", len([]rune(p)))
		}
	}
	html := strings.Repeat("a", 45) + "<b>bold</b>"
	for _, p := range splitTelegramText(html, 50, "HTML") {
		if strings.Count(p, "<") != strings.Count(p, ">") {
			t.Fatalf("tag split across parts: %q", p)
		}
	}
}

func TestIsNotModified(t *testing.T) {
	if !isNotModified(errors.New("telegram: Bad Request: message is not modified: specified new message content (400)")) {
		t.Fatalf("expected not-modified match")
	}
	if isNotModified(errors.New("telegram: chat not found (400)")) || isNotModified(nil) {
		t.Fatalf("unexpected match")
	}
}
