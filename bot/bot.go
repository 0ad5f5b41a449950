package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"forumgram-bridge/internal/config"
	"forumgram-bridge/internal/webhook"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"go.uber.org/ratelimit"
)

const (
	processTimeout = 30 * time.Second
	retryDelay     = 5 * time.Second
)

// UpdateSource opens a long-polling stream of updates.
type UpdateSource interface {
	Updates(ctx context.Context) (<-chan telego.Update, error)
}

// Dispatcher processes one update.
type Dispatcher interface {
	Dispatch(ctx context.Context, settings *config.Settings, update telego.Update) webhook.Outcome
}

// SettingsSource provides the current settings snapshot.
type SettingsSource interface {
	Snapshot() *config.Settings
}

// Bot pulls updates with long polling for deployments Telegram cannot reach
// with a webhook, and hands each one to the same dispatcher the webhook uses.
type Bot struct {
	source      UpdateSource
	dispatcher  Dispatcher
	settings    SettingsSource
	debug       bool
	ratelimiter ratelimit.Limiter
	restart     chan struct{}
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	Source     UpdateSource
	Dispatcher Dispatcher
	Settings   SettingsSource
	Debug      bool
	// Limiter defaults to 20 updates per second.
	Limiter ratelimit.Limiter
}

// New creates a new Bot instance from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("update source cannot be nil")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings source cannot be nil")
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.New(20)
	}
	return &Bot{
		source:      deps.Source,
		dispatcher:  deps.Dispatcher,
		settings:    deps.Settings,
		debug:       deps.Debug,
		ratelimiter: limiter,
		restart:     make(chan struct{}, 1),
	}, nil
}

// Restart makes Start reopen the update stream, e.g. after the bot token
// changed. It never blocks.
func (b *Bot) Restart() {
	select {
	case b.restart <- struct{}{}:
	default:
	}
}

// processUpdate dispatches one update with rate limiting, a timeout and
// panic recovery.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(time.Second * 2)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	settings := b.settings.Snapshot()
	if settings == nil || !settings.Enabled {
		if b.debug {
			log.Printf("[Poll Update:%d] Bridge disabled, dropping update", update.UpdateID)
		}
		return
	}

	out := b.dispatcher.Dispatch(processingCtx, settings, update)
	if out.Kind == webhook.OutcomeDegraded || b.debug {
		log.Printf("[Poll Update:%d] %s via %s: %v", update.UpdateID, out.Kind, out.Path, out.Err)
	}
}

// Start polls for updates until ctx is done, reopening the stream on Restart
// or when it fails.
func (b *Bot) Start(ctx context.Context) {
	log.Println("Listening for updates...")
	for {
		if ctx.Err() != nil {
			return
		}

		settings := b.settings.Snapshot()
		if settings == nil || !settings.Enabled {
			log.Println("[Poll] Bridge disabled, waiting for settings change")
			if !b.wait(ctx, 0) {
				return
			}
			continue
		}

		pollCtx, cancel := context.WithCancel(ctx)
		updates, err := b.source.Updates(pollCtx)
		if err != nil {
			cancel()
			log.Printf("[Poll] Failed to start long polling: %v", err)
			sentry.CaptureException(fmt.Errorf("start long polling: %w", err))
			if !b.wait(ctx, retryDelay) {
				return
			}
			continue
		}

		b.consume(ctx, pollCtx, cancel, updates)
	}
}

// consume handles updates until the stream closes. A restart request cancels
// pollCtx, which makes telego close the stream.
func (b *Bot) consume(ctx, pollCtx context.Context, cancel context.CancelFunc, updates <-chan telego.Update) {
	defer cancel()
	var wg sync.WaitGroup

	for {
		select {
		case <-b.restart:
			log.Println("[Poll] Restart requested, reopening update stream")
			cancel()
		case update, ok := <-updates:
			if !ok {
				log.Println("Updates channel closed.")
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		case <-pollCtx.Done():
			// Drain what telego already fetched.
			for update := range updates {
				wg.Add(1)
				go func(up telego.Update) {
					defer wg.Done()
					b.processUpdate(ctx, up)
				}(update)
			}
			wg.Wait()
			return
		}
	}
}

// wait blocks until ctx is done, a restart is requested or d elapses
// (d == 0 waits without a deadline). It returns false when ctx is done.
func (b *Bot) wait(ctx context.Context, d time.Duration) bool {
	var timeout <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-b.restart:
		return true
	case <-timeout:
		return true
	}
}
