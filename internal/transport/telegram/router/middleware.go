package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "notebot/pkg/logx"
)

// slowRequest promotes successful requests to INFO.
const slowRequest = 750 * time.Millisecond

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// MWTimeout bounds a handler. Zero leaves ctx untouched.
func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error so one bad update never
// takes down the chat's worker.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					requestLogger(log, req).Error("handler panic",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					name := ""
					if req != nil {
						name = req.Command
					}
					err = fmt.Errorf("handler %s panicked: %v", name, r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs one line per handled update with what the user sent.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			logger := requestLogger(log, req)
			fields := append(requestFields(req), logx.Duration("dur", d))
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				logger.Warn("request timed out", fields...)
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= slowRequest:
				logger.Info("request slow", fields...)
			default:
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

func requestLogger(log logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return log
}

// requestFields describes the update without logging note bodies.
func requestFields(req *Request) []logx.Field {
	if req == nil {
		return nil
	}
	fields := []logx.Field{logx.String("kind", string(req.Update.Kind))}
	switch {
	case req.Action != "":
		fields = append(fields, logx.String("action", req.Action))
		if req.Payload != "" {
			fields = append(fields, logx.String("payload", req.Payload))
		}
	case req.Message != nil:
		fields = append(fields,
			logx.Int("argc", len(req.Args)),
			logx.Int("text_len", len([]rune(req.Message.Text))),
			logx.Bool("private", req.Message.IsPrivate),
		)
	}
	return fields
}
