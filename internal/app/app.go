// Package app wires trainbot's components together: config, logging, history,
// transport backend, notifier, reporter, heartbeat.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"trainbot/internal/config"
	"trainbot/internal/heartbeat"
	"trainbot/internal/history"
	"trainbot/internal/notifier"
	"trainbot/internal/reporter"
	"trainbot/internal/transport"
	"trainbot/internal/transport/discord"
	"trainbot/internal/transport/telegram"
	logx "trainbot/pkg/logx"
)

type App struct {
	mgr   *config.Manager
	logs  *logx.Service
	log   logx.Logger
	store *history.Store

	client *notifier.Client
	rep    *reporter.Reporter
	hb     *heartbeat.Service

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(loggingConfig(cfg.Logging))
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	var (
		store *history.Store
		rec   reporter.Recorder
	)
	if cfg.History != nil {
		busy, err := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err = history.Open(history.Config{Path: cfg.History.Path, BusyTimeout: busy}, log.With(logx.String("comp", "history")))
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		if store != nil {
			rec = store
		}
	}

	factory, err := buildFactory(cfg.Chat, log)
	if err != nil {
		return nil, err
	}

	ncfg, err := notifierConfig(cfg.Chat)
	if err != nil {
		return nil, err
	}
	client := notifier.New(ncfg, factory, log.With(logx.String("comp", "notifier")))

	rcfg, err := reporterConfig(cfg.Reporter)
	if err != nil {
		return nil, err
	}
	rep := reporter.New(rcfg, client, rec, log.With(logx.String("comp", "reporter")))

	hb := heartbeat.New(heartbeat.Config{
		Enabled:  cfg.Heartbeat.Enabled,
		Schedule: cfg.Heartbeat.Schedule,
		Timezone: cfg.Heartbeat.Timezone,
	}, client, rep.Snapshot, log.With(logx.String("comp", "heartbeat")))

	return &App{
		mgr:    mgr,
		logs:   logs,
		log:    log,
		store:  store,
		client: client,
		rep:    rep,
		hb:     hb,
	}, nil
}

func (a *App) Logger() logx.Logger          { return a.log }
func (a *App) Client() *notifier.Client     { return a.client }
func (a *App) Reporter() *reporter.Reporter { return a.rep }
func (a *App) History() *history.Store      { return a.store }

// Start connects the notifier, starts the heartbeat, and begins watching the
// config file for logging changes.
func (a *App) Start(ctx context.Context) error {
	if err := a.client.Init(ctx); err != nil {
		return err
	}
	if err := a.hb.Start(); err != nil {
		a.log.Warn("heartbeat unavailable", logx.Err(err))
	}

	wctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.watchMu.Lock()
	a.watchCancel = cancel
	a.watchDone = done
	a.watchMu.Unlock()

	updates := a.mgr.Subscribe(1)
	go func() {
		defer close(done)
		defer a.mgr.Unsubscribe(updates)
		go func() {
			if err := a.mgr.Watch(wctx); err != nil {
				a.log.Warn("config watch stopped", logx.Err(err))
			}
		}()
		for {
			select {
			case <-wctx.Done():
				return
			case cfg := <-updates:
				if cfg == nil {
					continue
				}
				// Only logging knobs apply live; chat/backends need a restart.
				a.logs.Apply(loggingConfig(cfg.Logging))
			}
		}
	}()
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.watchMu.Lock()
	cancel, done := a.watchCancel, a.watchDone
	a.watchCancel, a.watchDone = nil, nil
	a.watchMu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	a.hb.Stop(ctx)
	err := a.client.Shutdown(ctx)
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = a.logs.Close()
	return err
}

func buildFactory(cfg config.ChatConfig, log logx.Logger) (transport.Factory, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", "discord":
		return discord.NewFactory(log.With(logx.String("comp", "discord"))), nil
	case "telegram":
		var chatID int64
		if cfg.ChannelID != "" {
			id, err := strconv.ParseInt(cfg.ChannelID, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("chat.channel_id: telegram requires a numeric chat id")
			}
			chatID = id
		}
		return telegram.NewFactory(telegram.Config{ChatID: chatID}, log.With(logx.String("comp", "telegram"))), nil
	default:
		return nil, errors.New("unknown chat backend: " + cfg.Backend)
	}
}

func notifierConfig(cfg config.ChatConfig) (notifier.Config, error) {
	ready, err := config.ParseDurationField("chat.ready_timeout", cfg.ReadyTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	call, err := config.ParseDurationField("chat.call_timeout", cfg.CallTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	grace, err := config.ParseDurationField("chat.shutdown_grace", cfg.ShutdownGrace)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Token:          cfg.Token,
		ChannelName:    cfg.Channel,
		ChannelID:      cfg.ChannelID,
		DefaultChannel: cfg.DefaultChannel,
		ReadyTimeout:   ready,
		CallTimeout:    call,
		ShutdownGrace:  grace,
		RatePerSec:     cfg.RatePerSec,
	}, nil
}

func reporterConfig(cfg config.ReporterConfig) (reporter.Config, error) {
	transient, err := config.ParseDurationField("reporter.transient_delay", cfg.TransientDelay)
	if err != nil {
		return reporter.Config{}, err
	}
	grace, err := config.ParseDurationField("reporter.predict_grace", cfg.PredictGrace)
	if err != nil {
		return reporter.Config{}, err
	}
	return reporter.Config{TransientDelay: transient, PredictGrace: grace}, nil
}

func loggingConfig(cfg config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   cfg.Level,
		Console: cfg.Console,
		File: logx.FileConfig{
			Enabled: cfg.File.Enabled,
			Path:    cfg.File.Path,
		},
	}
}
