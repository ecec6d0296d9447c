// Package app wires the reminder bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"notebot/internal/config"
	"notebot/internal/delivery"
	"notebot/internal/dialog"
	"notebot/internal/eventbus"
	"notebot/internal/notes"
	"notebot/internal/observability/ops"
	rtsup "notebot/internal/runtime/supervisor"
	"notebot/internal/storage"
	kit "notebot/internal/transport"
	telegram "notebot/internal/transport/telegram/adapter"
	"notebot/internal/transport/telegram/router"
	"notebot/pkg/logx"
	"notebot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor
	sd   systemd.Notifier

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	reg   *prometheus.Registry
	store storage.Store

	adapter  *telegram.Adapter
	router   *router.CommandManager
	dialogs  *dialog.Controller // nil when dialog.enabled=false
	delivery *delivery.Service
	ops      *ops.Service // nil when ops.enabled=false

	deliveryOn bool
	updates    chan kit.Update
}

// New builds every component from the loaded config. Nothing runs until Start.
func New(cfgm *config.ConfigManager) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a := &App{cfgm: cfgm, log: log.With(logx.String("comp", "app")), logs: logSvc, store: store}
	if err := a.wire(cfg, loc); err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	a.log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("timezone", loc.String()))
	return a, nil
}

func (a *App) wire(cfg *config.Config, loc *time.Location) error {
	root := a.logs.Logger()

	ac, err := mapAdapterConfig(cfg)
	if err != nil {
		return err
	}
	ad, err := telegram.New(ac, root.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.adapter = ad

	a.bus = eventbus.New()
	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var dialogs notes.Dialogs
	if cfg.Dialog.Enabled {
		lim, err := mapDialogLimits(cfg, loc)
		if err != nil {
			return err
		}
		sessions := dialog.NewSessionStore(cfg.Dialog.MaxSessions, lim.Timeout)
		a.dialogs = dialog.NewController(lim, sessions, ad, a.store, root.With(logx.String("comp", "dialog")))
		dialogs = a.dialogs
	}

	nc, err := mapNotesConfig(cfg, loc)
	if err != nil {
		return err
	}
	nh := notes.New(nc, a.store, dialogs, root.With(logx.String("comp", "notes")))

	a.router = router.NewCommandManager(root.With(logx.String("comp", "router")), ad, mapRouterOptions(cfg))
	a.router.SetRegistry(nh.Commands(), nh.Callbacks())
	a.router.SetTextHandler(nh.HandleText)

	dc, err := mapDeliveryConfig(cfg, loc)
	if err != nil {
		return err
	}
	metrics, err := delivery.NewMetrics(a.reg)
	if err != nil {
		return err
	}
	a.delivery = delivery.New(dc, a.store, ad, root.With(logx.String("comp", "delivery")), a.bus, metrics)
	a.deliveryOn = cfg.Delivery.Enabled

	if cfg.Ops.Enabled {
		oc, err := mapOpsConfig(cfg)
		if err != nil {
			return err
		}
		a.ops = ops.New(oc, a.reg, a.health, root)
	}

	buf := cfg.Telegram.UpdatesBuffer
	if buf <= 0 {
		buf = 256
	}
	a.updates = make(chan kit.Update, buf)
	return nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health(context.Context) error {
	if a.sup == nil {
		return errors.New("not started")
	}
	return a.sup.Err()
}

// DeliverOnce runs a single delivery pass without polling for updates.
func (a *App) DeliverOnce(ctx context.Context) (delivery.TickResult, error) {
	return a.delivery.Tick(ctx)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("router.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.router.UpdateMenu(mctx); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

	if a.deliveryOn {
		if err := a.delivery.Start(runCtx); err != nil {
			return err
		}
	} else {
		a.log.Info("delivery disabled; run `notebot deliver` from an external scheduler")
	}

	if a.ops != nil {
		if err := a.ops.Start(runCtx); err != nil {
			// optional surface; keep serving the bot
			a.log.Error("ops server not started", logx.Err(err))
		}
	}

	a.startEventLog()
	a.startConfigReload()
	a.sup.Go("config.watch", a.cfgm.Watch)

	if sent, err := a.sd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := a.sd.Watchdog(c, func() bool { return a.sup.Err() == nil }); err != nil {
			a.log.Warn("systemd watchdog stopped", logx.Err(err))
		}
	})

	a.log.Info("app started", logx.Bool("delivery", a.deliveryOn), logx.Bool("dialog", a.dialogs != nil), logx.Bool("ops", a.ops != nil))
	return nil
}

// startEventLog writes delivery outcomes to the log.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128, delivery.EventDelivered, delivery.EventDispatchFailed)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				ev, _ := e.Data.(delivery.DeliveredEvent)
				fields := []logx.Field{
					logx.String("type", e.Type),
					logx.Int64("id", ev.ID),
					logx.Int64("owner", ev.Owner),
					logx.Time("due_at", ev.DueAt),
				}
				if ev.Err != "" {
					a.log.Warn("event", append(fields, logx.String("err", ev.Err))...)
					continue
				}
				a.log.Debug("event", fields...)
			}
		}
	})
}

// startConfigReload applies logging changes live and flags everything else
// as needing a restart.
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}

				sections, attrs := config.SummarizeConfigChange(last, newCfg)
				last = newCfg
				if len(sections) == 0 {
					a.log.Info("config reloaded (no changes)")
					continue
				}
				a.logs.Apply(mapLogging(newCfg))
				if pending := config.RestartRequired(sections); len(pending) > 0 {
					a.log.Warn("config changed; restart required to apply", logx.String("sections", strings.Join(pending, ",")))
				}
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			}
		}
	})
}

// Stop shuts components down in dependency order, each step bounded so one
// stuck component cannot stall the rest. Safe to call on an app that was
// never started.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := a.sd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}
	if a.sup != nil {
		a.sup.Cancel()
	}

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if err := a.runStep(ctx, name, max, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	// dialogs first: their cleanup still needs the adapter
	step("dialog", 3*time.Second, func(c context.Context) error {
		if a.dialogs != nil {
			a.dialogs.Shutdown(c)
		}
		return nil
	})
	step("delivery", 5*time.Second, func(c context.Context) error { a.delivery.Stop(c); return nil })
	step("ops", 2*time.Second, func(c context.Context) error {
		if a.ops != nil {
			return a.ops.Stop(c)
		}
		return nil
	})
	step("router", 2*time.Second, func(c context.Context) error {
		if sup := a.router.Supervisor(); sup != nil {
			return ignoreCanceled(sup.Wait(c))
		}
		return nil
	})
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error {
		if a.sup != nil {
			return ignoreCanceled(a.sup.Wait(c))
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

func (a *App) runStep(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		// never extend the caller's deadline
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: no time left", logx.String("name", name))
		return context.DeadlineExceeded
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
		return stepCtx.Err()
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
