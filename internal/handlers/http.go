package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"forumgram-bridge/internal/config"
	"forumgram-bridge/internal/database"
	"forumgram-bridge/internal/notifications"
	"forumgram-bridge/internal/tasks"
	"forumgram-bridge/internal/webhook"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	"github.com/mymmrac/telego"
)

const maxBodyBytes = 1 << 20

// Dispatcher authenticates and processes Telegram updates.
type Dispatcher interface {
	Authenticate(ctx context.Context, key string) error
	Dispatch(ctx context.Context, settings *config.Settings, update telego.Update) webhook.Outcome
}

// SettingsSource provides the current settings snapshot.
type SettingsSource interface {
	Snapshot() *config.Settings
}

// Resyncer enqueues a webhook registration refresh.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// HTTPDeps holds the dependencies required by the HTTPHandler.
type HTTPDeps struct {
	Dispatcher Dispatcher
	Settings   SettingsSource
	Queue      tasks.Queue
	Bindings   database.ChatBindingStore
	Resyncer   Resyncer
	HostAPIKey string
	Debug      bool
}

// HTTPHandler serves the Telegram webhook and the host-facing endpoints.
type HTTPHandler struct {
	dispatcher Dispatcher
	settings   SettingsSource
	queue      tasks.Queue
	bindings   database.ChatBindingStore
	resyncer   Resyncer
	hostAPIKey string
	debug      bool
}

type bindingRequest struct {
	ChatID int64 `json:"chat_id"`
}

type bindingResponse struct {
	UserID int64 `json:"user_id"`
	ChatID int64 `json:"chat_id"`
}

type enqueueResponse struct {
	Enqueued bool   `json:"enqueued"`
	TaskID   string `json:"task_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPHandler creates an HTTPHandler from its dependencies.
func NewHTTPHandler(deps HTTPDeps) (*HTTPHandler, error) {
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings source cannot be nil")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("task queue cannot be nil")
	}
	if deps.Bindings == nil {
		return nil, fmt.Errorf("binding store cannot be nil")
	}
	if deps.Resyncer == nil {
		return nil, fmt.Errorf("resyncer cannot be nil")
	}
	return &HTTPHandler{
		dispatcher: deps.Dispatcher,
		settings:   deps.Settings,
		queue:      deps.Queue,
		bindings:   deps.Bindings,
		resyncer:   deps.Resyncer,
		hostAPIKey: deps.HostAPIKey,
		debug:      deps.Debug,
	}, nil
}

// SetupEndpoints registers all routes on router.
func (h *HTTPHandler) SetupEndpoints(router *mux.Router) {
	router.HandleFunc("/telegram/hook/{key}", h.HandleHook).Methods(http.MethodPost)
	router.HandleFunc("/telegram/notifications", h.withHostKey(h.HandleNotification)).Methods(http.MethodPost)
	router.HandleFunc("/telegram/bindings/{user_id:[0-9]+}", h.withHostKey(h.HandleBind)).Methods(http.MethodPut)
	router.HandleFunc("/telegram/bindings/{user_id:[0-9]+}", h.withHostKey(h.HandleUnbind)).Methods(http.MethodDelete)
	router.HandleFunc("/telegram/webhook/resync", h.withHostKey(h.HandleResync)).Methods(http.MethodPost)
	router.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
}

// Handler returns the routed endpoints wrapped with Sentry panic capture.
func (h *HTTPHandler) Handler() http.Handler {
	router := mux.NewRouter()
	h.SetupEndpoints(router)
	return sentryhttp.New(sentryhttp.Options{Repanic: false}).Handle(router)
}

// HandleHook receives Telegram updates. Once the key is accepted the answer
// is always success so Telegram never redelivers.
func (h *HTTPHandler) HandleHook(w http.ResponseWriter, r *http.Request) {
	settings := h.settings.Snapshot()
	if settings == nil || !settings.Enabled {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	if err := h.dispatcher.Authenticate(ctx, mux.Vars(r)["key"]); err != nil {
		if !errors.Is(err, webhook.ErrUnauthorized) {
			log.Printf("[HTTP Hook] Authentication error: %v", err)
			sentry.CaptureException(fmt.Errorf("webhook authentication: %w", err))
		}
		h.writeJSONResponse(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
		return
	}

	var update telego.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&update); err != nil {
		log.Printf("[HTTP Hook] Ignoring undecodable update: %v", err)
		h.writeJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	out := h.dispatcher.Dispatch(ctx, settings, update)
	if out.Kind == webhook.OutcomeDegraded || h.debug {
		log.Printf("[HTTP Hook Update:%d] %s via %s: %v", update.UpdateID, out.Kind, out.Path, out.Err)
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleNotification accepts a notification event from the forum and queues
// it for forwarding.
func (h *HTTPHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	var ev notifications.Event
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		h.writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := ev.Validate(); err != nil {
		h.writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	settings := h.settings.Snapshot()
	if settings == nil || !settings.Enabled {
		h.writeJSONResponse(w, http.StatusOK, enqueueResponse{Enqueued: false})
		return
	}

	task, err := tasks.New(tasks.KindForwardNotification, ev)
	if err != nil {
		h.writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: "failed to create task"})
		return
	}
	if err := h.queue.Enqueue(r.Context(), task); err != nil {
		log.Printf("[HTTP Notification User:%d] Failed to enqueue: %v", ev.UserID, err)
		sentry.CaptureException(fmt.Errorf("enqueue notification for user %d: %w", ev.UserID, err))
		h.writeJSONResponse(w, http.StatusServiceUnavailable, errorResponse{Error: "task queue unavailable"})
		return
	}
	h.writeJSONResponse(w, http.StatusAccepted, enqueueResponse{Enqueued: true, TaskID: task.ID})
}

// HandleBind sets the chat of a forum user.
func (h *HTTPHandler) HandleBind(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
	if err != nil || userID <= 0 {
		h.writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return
	}

	var req bindingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil || req.ChatID <= 0 {
		h.writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "chat_id must be a private chat id"})
		return
	}

	if err := h.bindings.Bind(r.Context(), userID, req.ChatID); err != nil {
		if errors.Is(err, database.ErrChatAlreadyBound) {
			h.writeJSONResponse(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		log.Printf("[HTTP Bind User:%d Chat:%d] %v", userID, req.ChatID, err)
		sentry.CaptureException(fmt.Errorf("bind user %d: %w", userID, err))
		h.writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: "failed to store binding"})
		return
	}

	log.Printf("[HTTP Bind User:%d] Bound to chat %d", userID, req.ChatID)
	h.writeJSONResponse(w, http.StatusOK, bindingResponse{UserID: userID, ChatID: req.ChatID})
}

// HandleUnbind removes the chat of a forum user.
func (h *HTTPHandler) HandleUnbind(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
	if err != nil || userID <= 0 {
		h.writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return
	}
	if err := h.bindings.Unbind(r.Context(), userID); err != nil {
		log.Printf("[HTTP Unbind User:%d] %v", userID, err)
		sentry.CaptureException(fmt.Errorf("unbind user %d: %w", userID, err))
		h.writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: "failed to remove binding"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResync lets the host request a fresh webhook registration.
func (h *HTTPHandler) HandleResync(w http.ResponseWriter, r *http.Request) {
	if err := h.resyncer.Resync(r.Context()); err != nil {
		log.Printf("[HTTP Resync] %v", err)
		sentry.CaptureException(fmt.Errorf("webhook resync: %w", err))
		h.writeJSONResponse(w, http.StatusServiceUnavailable, errorResponse{Error: "task queue unavailable"})
		return
	}
	h.writeJSONResponse(w, http.StatusAccepted, enqueueResponse{Enqueued: true})
}

// HandleHealth reports liveness.
func (h *HTTPHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) withHostKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Api-Key")
		if h.hostAPIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.hostAPIKey)) != 1 {
			h.writeJSONResponse(w, http.StatusUnauthorized, errorResponse{Error: "invalid api key"})
			return
		}
		next(w, r)
	}
}

func (h *HTTPHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[HTTP] Failed to encode JSON response: %v", err)
	}
}
