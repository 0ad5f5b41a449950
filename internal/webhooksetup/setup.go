package webhooksetup

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"forumgram-bridge/internal/config"
	"forumgram-bridge/internal/database"
	"forumgram-bridge/internal/tasks"
)

// HookPath is the route prefix Telegram delivers updates to.
const HookPath = "/telegram/hook/"

const secretBytes = 16

// Registrar is the part of the Telegram client managing the bot connection.
type Registrar interface {
	Reconfigure(token string) error
	RegisterWebhook(ctx context.Context, url string) error
	DeleteWebhook(ctx context.Context) error
}

// Task refreshes the webhook registration with a freshly rotated secret.
type Task struct {
	client    Registrar
	secrets   database.SettingsStore
	publicURL string
	mode      string
}

// NewTask creates the setup task. In polling mode the task removes any
// webhook instead of registering one.
func NewTask(client Registrar, secrets database.SettingsStore, publicURL, mode string) (*Task, error) {
	if client == nil {
		return nil, fmt.Errorf("telegram client cannot be nil")
	}
	if secrets == nil {
		return nil, fmt.Errorf("settings store cannot be nil")
	}
	if mode == config.ModeWebhook && publicURL == "" {
		return nil, fmt.Errorf("public URL is required in webhook mode")
	}
	return &Task{
		client:    client,
		secrets:   secrets,
		publicURL: strings.TrimRight(publicURL, "/"),
		mode:      mode,
	}, nil
}

// Run is a no-op while the bridge is disabled. Running it repeatedly is safe:
// each run rotates the secret and re-registers.
func (t *Task) Run(ctx context.Context, settings *config.Settings) error {
	if settings == nil || !settings.Enabled {
		log.Printf("[WebhookSetup] Bridge disabled, nothing to do")
		return nil
	}

	if t.mode == config.ModePolling {
		if err := t.client.DeleteWebhook(ctx); err != nil {
			return fmt.Errorf("failed to delete webhook for polling mode: %w", err)
		}
		log.Printf("[WebhookSetup] Polling mode, webhook removed")
		return nil
	}

	secret, err := NewSecret()
	if err != nil {
		return err
	}
	// The stored secret must keep matching the registered URL, so it is only
	// replaced once Telegram accepted the new one.
	if err := t.client.RegisterWebhook(ctx, HookURL(t.publicURL, secret)); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}
	if err := t.secrets.SetSetting(ctx, database.SettingWebhookSecret, secret); err != nil {
		return fmt.Errorf("failed to store webhook secret: %w", err)
	}
	log.Printf("[WebhookSetup] Webhook registered at %s%s<secret>", t.publicURL, HookPath)
	return nil
}

// NewSecret returns 32 random hex characters.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HookURL builds the webhook URL for the secret.
func HookURL(publicURL, secret string) string {
	return strings.TrimRight(publicURL, "/") + HookPath + secret
}

// Reconciler reacts to settings changes that affect the bot connection.
type Reconciler struct {
	client Registrar
	queue  tasks.Queue
}

// NewReconciler creates a Reconciler enqueuing setup tasks on queue.
func NewReconciler(client Registrar, queue tasks.Queue) (*Reconciler, error) {
	if client == nil {
		return nil, fmt.Errorf("telegram client cannot be nil")
	}
	if queue == nil {
		return nil, fmt.Errorf("task queue cannot be nil")
	}
	return &Reconciler{client: client, queue: queue}, nil
}

// Reconcile applies next when it differs from old in a way that requires a
// new registration. old is nil at startup. It reports whether a setup task
// was enqueued.
func (r *Reconciler) Reconcile(ctx context.Context, old, next *config.Settings) (bool, error) {
	if !config.Changed(old, next) {
		return false, nil
	}

	token := ""
	if next.Enabled {
		token = next.BotToken
	}
	if err := r.client.Reconfigure(token); err != nil {
		return false, fmt.Errorf("failed to reconfigure telegram client: %w", err)
	}

	return true, r.Resync(ctx)
}

// Resync enqueues a setup task unconditionally.
func (r *Reconciler) Resync(ctx context.Context) error {
	task, err := tasks.New(tasks.KindSetupWebhook, nil)
	if err != nil {
		return err
	}
	if err := r.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue webhook setup: %w", err)
	}
	log.Printf("[WebhookSetup] Setup task %s enqueued", task.ID)
	return nil
}
