package router

import (
	"context"
	"hash/fnv"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"notebot/internal/runtime/supervisor"
	kit "notebot/internal/transport"
	logx "notebot/pkg/logx"
	"notebot/pkg/tgui"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// CallbackHandlerFunc handles an inline button press. The returned text is
// shown as the callback answer (empty: just stop the spinner).
type CallbackHandlerFunc func(ctx context.Context, req *Request) (string, error)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Hidden      bool // not listed in /help or the menu

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackRoute struct {
	Namespace string
	Action    string
	Timeout   time.Duration
	Handle    CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Message *kit.Message // nil for callbacks
	Chat    kit.ChatTarget
	FromID  int64

	Command string // command name, "text", or "cb:<ns>:<action>"
	Args    []string
	RawArgs string // text after the command word, untouched
	Action  string
	Payload string // callback payload

	MessageID int // message carrying the pressed button (callbacks)
	ReqID     string

	Adapter kit.Sender
	Logger  logx.Logger
}

// Reply sends plain text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
}

// ReplyHTML sends HTML text to the chat the request came from.
func (r *Request) ReplyHTML(ctx context.Context, text string) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
}

type Options struct {
	Workers        int           // default: NumCPU, at least 2
	QueueSize      int           // per worker, default 64
	DefaultTimeout time.Duration // default 30s
}

// CommandManager routes updates to commands, callback routes and the
// free-text handler. Updates of one chat are always handled by the same
// worker, so they are processed in arrival order.
type CommandManager struct {
	mu        sync.RWMutex
	cmds      map[string]*Command // name and aliases
	listed    []Command
	callbacks map[string]map[string]CallbackRoute // ns -> action -> route
	text      HandlerFunc

	log     logx.Logger
	adapter kit.Sender
	opt     Options

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor
	queues  []chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Sender, opt Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = max(runtime.NumCPU(), 2)
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 64
	}
	if opt.DefaultTimeout <= 0 {
		opt.DefaultTimeout = 30 * time.Second
	}
	return &CommandManager{
		cmds:      map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       log,
		adapter:   adapter,
		opt:       opt,
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (m *CommandManager) Supervisor() *supervisor.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

// SetTextHandler sets the handler for messages that are not commands.
func (m *CommandManager) SetTextHandler(h HandlerFunc) {
	m.mu.Lock()
	m.text = h
	m.mu.Unlock()
}

// SetRegistry replaces the commands and callback routes. /help is always added.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	helper := Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show help",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.ReplyHTML(ctx, m.helpText(req.Args))
			return err
		},
	}
	hasHelp := false
	for _, c := range cmds {
		if strings.EqualFold(c.Name, "help") {
			hasHelp = true
		}
	}
	if !hasHelp {
		cmds = append(cmds, helper)
	}

	table := map[string]*Command{}
	listed := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		table[name] = &cc
		for _, a := range c.Aliases {
			if sa := sanitizeTelegramCommand(a); sa != "" {
				if _, exists := table[sa]; !exists {
					table[sa] = &cc
				}
			}
		}
		if !cc.Hidden {
			listed = append(listed, cc)
		}
	}
	sort.SliceStable(listed, func(i, j int) bool { return listed[i].Name < listed[j].Name })

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		ns := strings.TrimSpace(r.Namespace)
		a := strings.TrimSpace(r.Action)
		if ns == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[ns] == nil {
			cb[ns] = map[string]CallbackRoute{}
		}
		cb[ns][a] = r
	}

	m.mu.Lock()
	m.cmds = table
	m.listed = listed
	m.callbacks = cb
	m.mu.Unlock()
}

// UpdateMenu pushes the command list to the platform menu when supported.
func (m *CommandManager) UpdateMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	m.mu.RLock()
	menu := buildTelegramMenuCommands(m.listed)
	m.mu.RUnlock()
	return up.UpdateMenuCommands(ctx, menu)
}

func (m *CommandManager) setRunning(sup *supervisor.Supervisor, queues []chan func(), running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.queues = queues
	m.running = running
	m.runMu.Unlock()
}

// DispatchLoop consumes updates until ctx is cancelled or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := m.opt.Workers
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	queues := make([]chan func(), workers)
	for i := range queues {
		queues[i] = make(chan func(), m.opt.QueueSize)
	}
	m.setRunning(sup, queues, true)
	m.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("queue_cap", m.opt.QueueSize))

	for i := 0; i < workers; i++ {
		idx := i
		jobs := queues[i]
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}

	defer func() {
		m.setRunning(sup, nil, false)
		for _, q := range queues {
			close(q)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		m.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.Route(ctx, up)
		}
	}
}

func (m *CommandManager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in router job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

// enqueue hands fn to the worker owning chat. When the dispatcher is not
// running fn runs inline.
func (m *CommandManager) enqueue(chat int64, fn func()) bool {
	m.runMu.Lock()
	if !m.running || len(m.queues) == 0 {
		m.runMu.Unlock()
		fn()
		return true
	}
	defer m.runMu.Unlock()
	q := m.queues[shard(chat, len(m.queues))]
	select {
	case q <- fn:
		return true
	default:
		return false
	}
}

func shard(chat int64, n int) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(chat, 10)))
	return int(h.Sum32() % uint32(n))
}

// Route dispatches a single update.
func (m *CommandManager) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)

	if !strings.HasPrefix(text, "/") {
		m.mu.RLock()
		h := m.text
		m.mu.RUnlock()
		if h == nil || text == "" {
			return
		}
		m.dispatch(root, up, chat, msg.FromID, "text", m.opt.DefaultTimeout, h, func(req *Request) {
			req.Message = msg
			req.RawArgs = msg.Text
		})
		return
	}

	word, rest := splitCommand(text)
	m.mu.RLock()
	cmd, ok := m.cmds[strings.ToLower(word)]
	m.mu.RUnlock()
	if !ok {
		// Group and channel chats carry commands meant for other bots.
		if msg.IsPrivate {
			_, _ = m.adapter.SendText(root, chat, "Unknown command. Try /help", nil)
		}
		return
	}
	c := *cmd
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = m.opt.DefaultTimeout
	}
	m.dispatch(root, up, chat, msg.FromID, c.Name, timeout, c.Handle, func(req *Request) {
		req.Message = msg
		req.Args = tokenizeCommandLine(rest)
		req.RawArgs = rest
	})
}

func (m *CommandManager) routeCallback(root context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	ns, action, payload, ok := tgui.SplitData(cb.Data)
	if !ok {
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}
	m.mu.RLock()
	route, ok := m.callbacks[ns][action]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}

	var answer string
	h := func(ctx context.Context, req *Request) error {
		txt, err := route.Handle(ctx, req)
		answer = txt
		return err
	}
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = m.opt.DefaultTimeout
	}
	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	accepted := m.dispatch(root, up, chat, cb.FromID, "cb:"+ns+":"+action, timeout, h, func(req *Request) {
		req.Action = action
		req.Payload = payload
		req.MessageID = cb.MessageID
	}, func() {
		_ = m.adapter.AnswerCallback(root, cb.ID, answer)
	})
	if !accepted {
		_ = m.adapter.AnswerCallback(root, cb.ID, "Busy, try again")
	}
}

// dispatch builds the request, wraps h with the middleware chain and queues it.
func (m *CommandManager) dispatch(root context.Context, up kit.Update, chat kit.ChatTarget, from int64, name string, timeout time.Duration, h HandlerFunc, fill func(*Request), after ...func()) bool {
	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: name,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", name),
		),
	}
	if fill != nil {
		fill(req)
	}
	final := Chain(h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	ok := m.enqueue(chat.ChatID, func() {
		_ = final(root, req)
		for _, fn := range after {
			fn()
		}
	})
	if !ok {
		m.log.Warn("router queue full; update dropped", logx.String("cmd", name), logx.Int64("chat_id", chat.ChatID))
		if up.Kind == kit.UpdateMessage {
			_, _ = m.adapter.SendText(root, chat, "Busy, try again in a moment.", nil)
		}
	}
	return ok
}

// splitCommand returns the command word without "/" and "@bot", and the rest.
func splitCommand(text string) (word, rest string) {
	text = strings.TrimPrefix(text, "/")
	word, rest, _ = strings.Cut(text, " ")
	if i := strings.IndexAny(word, "\n\t"); i >= 0 {
		rest = word[i+1:] + " " + rest
		word = word[:i]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return word, strings.TrimSpace(rest)
}
