package router

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	kit "notebot/internal/transport"
	logx "notebot/pkg/logx"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	answers map[string]string
	menu    []kit.BotCommand
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeSender) DeleteMessage(context.Context, kit.MessageRef) error { return nil }

func (f *fakeSender) AnswerCallback(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answers == nil {
		f.answers = map[string]string{}
	}
	f.answers[id] = text
	return nil
}

func (f *fakeSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.menu = cmds
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func message(chat int64, text string, private bool) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: chat, FromID: 9, Text: text, IsPrivate: private}}
}

func TestRouteCommandWithAliasAndMention(t *testing.T) {
	fs := &fakeSender{}
	m := NewCommandManager(logx.Nop(), fs, Options{})
	var got *Request
	m.SetRegistry([]Command{{
		Name:    "all",
		Aliases: []string{"all_notes"},
		Handle: func(_ context.Context, req *Request) error {
			got = req
			return nil
		},
	}}, nil)

	m.Route(context.Background(), message(5, `/all_notes@notebot "two words" x`, true))
	if got == nil {
		t.Fatalf("handler not called")
	}
	if got.Command != "all" {
		t.Fatalf("command = %q", got.Command)
	}
	if !reflect.DeepEqual(got.Args, []string{"two words", "x"}) {
		t.Fatalf("args = %q", got.Args)
	}
	if got.Message == nil || got.FromID != 9 || got.Chat.ChatID != 5 {
		t.Fatalf("request = %+v", got)
	}
}

func TestUnknownCommandRepliesOnlyInPrivate(t *testing.T) {
	fs := &fakeSender{}
	m := NewCommandManager(logx.Nop(), fs, Options{})
	m.SetRegistry(nil, nil)

	m.Route(context.Background(), message(-100, "/nope", false))
	if n := len(fs.texts()); n != 0 {
		t.Fatalf("group: sent %d messages", n)
	}
	m.Route(context.Background(), message(5, "/nope", true))
	if txt := fs.texts(); len(txt) != 1 || !strings.Contains(txt[0], "/help") {
		t.Fatalf("private: sent %q", txt)
	}
}

func TestTextHandlerReceivesPlainMessages(t *testing.T) {
	fs := &fakeSender{}
	m := NewCommandManager(logx.Nop(), fs, Options{})
	var raw string
	m.SetTextHandler(func(_ context.Context, req *Request) error {
		raw = req.RawArgs
		return nil
	})
	m.Route(context.Background(), message(5, "buy milk #home", true))
	if raw != "buy milk #home" {
		t.Fatalf("text handler got %q", raw)
	}
}

func TestCallbackAnswerUsesHandlerText(t *testing.T) {
	fs := &fakeSender{}
	m := NewCommandManager(logx.Nop(), fs, Options{})
	m.SetRegistry(nil, []CallbackRoute{{
		Namespace: "dlg",
		Action:    "date",
		Handle: func(_ context.Context, req *Request) (string, error) {
			return "picked " + req.Payload, nil
		},
	}})

	m.Route(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb1", ChatID: 5, FromID: 9, MessageID: 77, Data: "dlg:date:20260302",
	}})
	m.Route(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb2", ChatID: 5, FromID: 9, Data: "zzz:nope",
	}})

	if got := fs.answers["cb1"]; got != "picked 20260302" {
		t.Fatalf("answer = %q", got)
	}
	if _, ok := fs.answers["cb2"]; !ok {
		t.Fatalf("unknown callback must still be answered")
	}
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	fs := &fakeSender{}
	m := NewCommandManager(logx.Nop(), fs, Options{})
	m.SetRegistry([]Command{{Name: "boom", Handle: func(context.Context, *Request) error { panic("x") }}}, nil)
	m.Route(context.Background(), message(5, "/boom", true))
}

func TestHelpListsCommands(t *testing.T) {
	fs := &fakeSender{}
	m := NewCommandManager(logx.Nop(), fs, Options{})
	m.SetRegistry([]Command{
		{Name: "find", Description: "find notes by tag", Usage: "/find #tag", Handle: func(context.Context, *Request) error { return nil }},
		{Name: "secret", Hidden: true, Handle: func(context.Context, *Request) error { return nil }},
	}, nil)

	top := m.helpText(nil)
	if !strings.Contains(top, "/find - find notes by tag") || !strings.Contains(top, "/help") {
		t.Fatalf("help = %q", top)
	}
	if strings.Contains(top, "secret") {
		t.Fatalf("hidden command listed: %q", top)
	}
	if one := m.helpText([]string{"/find"}); !strings.Contains(one, "/find #tag") {
		t.Fatalf("command help = %q", one)
	}

	if err := m.UpdateMenu(context.Background()); err != nil {
		t.Fatalf("UpdateMenu: %v", err)
	}
	if len(fs.menu) != 2 || fs.menu[0].Command != "find" || fs.menu[1].Command != "help" {
		t.Fatalf("menu = %+v", fs.menu)
	}
}

func TestDispatchLoopKeepsChatOrder(t *testing.T) {
	fs := &fakeSender{}
	m := NewCommandManager(logx.Nop(), fs, Options{Workers: 4})

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})
	m.SetTextHandler(func(_ context.Context, req *Request) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, req.RawArgs)
		if len(seen) == 20 {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 32)
	loopDone := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates)
		close(loopDone)
	}()

	for i := 0; i < 20; i++ {
		updates <- message(42, string(rune('a'+i)), true)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out, saw %d", len(seen))
	}
	cancel()
	<-loopDone

	mu.Lock()
	defer mu.Unlock()
	for i, s := range seen {
		if s != string(rune('a'+i)) {
			t.Fatalf("order broken at %d: %q", i, seen)
		}
	}
}

func TestTokenizeCommandLine(t *testing.T) {
	got := tokenizeCommandLine(`a "b c" 'd' e\ f`)
	want := []string{"a", "b c", "d", "e f"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
	if tokenizeCommandLine("   ") != nil {
		t.Fatalf("blank input must give nil")
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	cases := map[string]string{
		"All-Notes": "all_notes",
		"/find":     "find",
		"9lives":    "cmd_9lives",
		"  ":        "",
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
