package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	telegoBot "forumgram-bridge/bot"
	"forumgram-bridge/internal/config"
	"forumgram-bridge/internal/database"
	"forumgram-bridge/internal/database/memory"
	"forumgram-bridge/internal/forum"
	"forumgram-bridge/internal/handlers"
	"forumgram-bridge/internal/locales"
	"forumgram-bridge/internal/markup"
	"forumgram-bridge/internal/media"
	"forumgram-bridge/internal/notifications"
	"forumgram-bridge/internal/tasks"
	"forumgram-bridge/internal/telegram"
	"forumgram-bridge/internal/webhook"
	"forumgram-bridge/internal/webhooksetup"

	sentry "github.com/getsentry/sentry-go"
)

const (
	taskTimeout     = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
	forumTimeout    = 15 * time.Second
)

// stores groups the persistence used by the bridge.
type stores struct {
	links    database.MessageLinkStore
	bindings database.ChatBindingStore
	settings database.SettingsStore
	close    func()
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize localization bundle
	if err := locales.Init(cfg.DefaultLanguage); err != nil {
		log.Fatalf("Localization error: %v", err)
	}

	// Initialize Sentry (if DSN is provided)
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	// Creating context for application lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	defer st.close()

	live := config.NewLive(cfg.Settings)

	// --- Clients ---
	forumClient, err := forum.NewClient(cfg.ForumBaseURL, cfg.ForumAPIKey, cfg.ForumAPIUsername, &http.Client{Timeout: forumTimeout})
	if err != nil {
		log.Fatalf("Failed to create forum client: %v", err)
	}
	tg := telegram.New(cfg.Debug)

	builder, err := markup.NewBuilder(forumClient)
	if err != nil {
		log.Fatalf("Failed to create markup builder: %v", err)
	}
	converter, err := media.NewConverter(cfg.MediaTmpDir)
	if err != nil {
		log.Fatalf("Failed to create media converter: %v", err)
	}

	// --- Core components ---
	forwarder, err := notifications.NewForwarder(notifications.ForwarderDeps{
		Chat:       tg,
		Bindings:   st.bindings,
		Links:      st.links,
		Content:    forumClient,
		Controls:   builder,
		Normalizer: converter,
		PublicRoot: cfg.ForumPublicRoot,
		DedupTTL:   cfg.DedupTTL,
		Debug:      cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to create notification forwarder: %v", err)
	}

	dispatcher, err := webhook.NewDispatcher(webhook.DispatcherDeps{
		Chat:     tg,
		Forum:    forumClient,
		Bindings: st.bindings,
		Links:    st.links,
		Secrets:  st.settings,
		Controls: builder,
		Debug:    cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to create webhook dispatcher: %v", err)
	}

	setupTask, err := webhooksetup.NewTask(tg, st.settings, cfg.PublicURL, cfg.UpdateMode)
	if err != nil {
		log.Fatalf("Failed to create webhook setup task: %v", err)
	}

	// --- Background tasks ---
	router := tasks.NewRouter(taskTimeout)
	router.Handle(tasks.KindForwardNotification, func(ctx context.Context, task tasks.Task) error {
		var ev notifications.Event
		if err := task.Decode(&ev); err != nil {
			return err
		}
		forwarder.Forward(ctx, live.Snapshot(), ev)
		return nil
	})
	router.Handle(tasks.KindSetupWebhook, func(ctx context.Context, task tasks.Task) error {
		return setupTask.Run(ctx, live.Snapshot())
	})

	queue, err := openQueue(ctx, cfg, router)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	reconciler, err := webhooksetup.NewReconciler(tg, queue)
	if err != nil {
		log.Fatalf("Failed to create reconciler: %v", err)
	}

	var poller *telegoBot.Bot
	if cfg.UpdateMode == config.ModePolling {
		poller, err = telegoBot.New(telegoBot.BotDeps{
			Source:     tg,
			Dispatcher: dispatcher,
			Settings:   live,
			Debug:      cfg.Debug,
		})
		if err != nil {
			log.Fatalf("Failed to create poller: %v", err)
		}
	}

	onChange := func(ctx context.Context, old, next *config.Settings) {
		if _, err := reconciler.Reconcile(ctx, old, next); err != nil {
			log.Printf("[Reconcile] %v", err)
			sentry.CaptureException(fmt.Errorf("reconcile settings: %w", err))
		}
		if poller != nil && config.Changed(old, next) {
			poller.Restart()
		}
	}
	onChange(ctx, nil, live.Snapshot())

	if _, err := os.Stat(cfg.EnvFile); err == nil {
		watcher, err := config.NewWatcher(cfg.EnvFile, live, onChange)
		if err != nil {
			log.Fatalf("Failed to create config watcher: %v", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Printf("[ConfigWatcher] Stopped: %v", err)
				sentry.CaptureException(err)
			}
		}()
	}

	// --- HTTP ---
	httpHandler, err := handlers.NewHTTPHandler(handlers.HTTPDeps{
		Dispatcher: dispatcher,
		Settings:   live,
		Queue:      queue,
		Bindings:   st.bindings,
		Resyncer:   reconciler,
		HostAPIKey: cfg.HostAPIKey,
		Debug:      cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to create HTTP handler: %v", err)
	}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	go func() {
		log.Printf("Listening on %s (mode=%s, storage=%s, tasks=%s)", cfg.HTTPAddr, cfg.UpdateMode, cfg.StorageBackend, cfg.TaskBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.CaptureException(err)
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	if poller != nil {
		go poller.Start(ctx)
	}

	// Wait for context cancellation (e.g., SIGINT, SIGTERM)
	<-ctx.Done()
	log.Println("Shutting down bridge...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := queue.Close(); err != nil {
		log.Printf("Task queue close error: %v", err)
	}

	log.Println("Bridge shutdown complete.")
}

// openStores selects the storage backend.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StorageBackend == config.StorageMemory {
		log.Println("Warning: using in-memory storage, links and bindings are lost on restart.")
		return &stores{
			links:    memory.NewMessageLinkStore(),
			bindings: memory.NewChatBindingStore(),
			settings: memory.NewSettingsStore(),
			close:    func() {},
		}, nil
	}

	client, db, err := database.ConnectDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	bindings := database.NewMongoChatBindingRepository(db)
	if err := bindings.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create binding indexes: %w", err)
	}

	return &stores{
		links:    database.NewMongoMessageLinkRepository(db),
		bindings: bindings,
		settings: database.NewMongoSettingsRepository(db),
		close: func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
				sentry.CaptureException(err)
			} else {
				log.Println("Disconnected from MongoDB.")
			}
		},
	}, nil
}

// openQueue selects the task backend. The AMQP consumer runs until ctx is done.
func openQueue(ctx context.Context, cfg *config.Config, router *tasks.Router) (tasks.Queue, error) {
	if cfg.TaskBackend == config.TasksAMQP {
		q, err := tasks.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, router, cfg.WorkerCount)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := q.Run(ctx); err != nil {
				log.Printf("[Tasks AMQP] Consumer stopped: %v", err)
				sentry.CaptureException(err)
			}
		}()
		return q, nil
	}
	q, err := tasks.NewPoolQueue(router, cfg.WorkerCount)
	if err != nil {
		return nil, err
	}
	return q, nil
}
