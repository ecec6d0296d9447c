package router

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	kit "notebot/internal/transport"
	logx "notebot/pkg/logx"
)

func TestRequestLogOmitsNoteText(t *testing.T) {
	var buf bytes.Buffer
	log := logx.NewWriter(&buf, "debug")
	req := &Request{
		Update:  kit.Update{Kind: kit.UpdateMessage},
		Message: &kit.Message{Text: "secret plan @09:00 01-02-2030", IsPrivate: true},
		Command: "text",
	}
	h := Chain(func(context.Context, *Request) error { return nil }, MWRequestLog(log))
	if err := h(context.Background(), req); err != nil {
		t.Fatalf("handler: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "secret plan") {
		t.Fatalf("log leaked note text: %s", out)
	}
	if !strings.Contains(out, "text_len") || !strings.Contains(out, "request ok") {
		t.Fatalf("missing request fields: %s", out)
	}
}

func TestRequestLogCallbackFields(t *testing.T) {
	var buf bytes.Buffer
	log := logx.NewWriter(&buf, "debug")
	req := &Request{Update: kit.Update{Kind: kit.UpdateCallback}, Action: "day", Payload: "2030-02-01"}
	h := Chain(func(context.Context, *Request) error { return errors.New("boom") }, MWRequestLog(log))
	if err := h(context.Background(), req); err == nil {
		t.Fatal("error was swallowed")
	}
	out := buf.String()
	for _, want := range []string{"request failed", "2030-02-01", "\"action\":\"day\""} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q: %s", want, out)
		}
	}
}

func TestTimeoutIsLoggedAsTimeout(t *testing.T) {
	var buf bytes.Buffer
	log := logx.NewWriter(&buf, "debug")
	h := Chain(func(ctx context.Context, _ *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, MWRequestLog(log), MWTimeout(20*time.Millisecond))

	err := h(context.Background(), &Request{Command: "find"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if !strings.Contains(buf.String(), "request timed out") {
		t.Fatalf("missing timeout line: %s", buf.String())
	}
}

func TestPanicRecoverNamesCommand(t *testing.T) {
	h := Chain(func(context.Context, *Request) error { panic("nil map") }, MWPanicRecover(logx.Nop()))
	err := h(context.Background(), &Request{Command: "all"})
	if err == nil || !strings.Contains(err.Error(), "handler all panicked") {
		t.Fatalf("err = %v", err)
	}
}
