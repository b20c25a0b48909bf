package pushhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/push-relay/api"
	"github.com/ruteri/push-relay/interfaces"
	"github.com/ruteri/push-relay/metrics"
	"github.com/ruteri/push-relay/platform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	RegisterPath  = "/api/login"
	BroadcastPath = "/api/sendNotification"

	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// Response messages. Clients in the field match on some of them.
const (
	msgMethodNotAllowed = "Method Not Allowed"
	msgInitFailed       = "Server Initialization Failed"
	msgInvalidJSON      = "Invalid JSON in request body."
	msgMissingFields    = "Missing phone number or token in request body."
	msgRegistered       = "Token registered successfully."
	msgSaveFailed       = "Failed to save token on server."
	msgNoDevices        = "No registered devices found to send notification."
	msgSent             = "%d notifications sent successfully."
	msgRetrieveFailed   = "Failed to retrieve tokens from database."
	msgSendFailed       = "Failed to send notifications due to server error."
)

const (
	DefaultTitle           = "New Notification"
	DefaultBody            = "Check out the new message."
	DefaultClickAction     = "FLUTTER_NOTIFICATION_CLICK"
	DefaultUpstreamTimeout = 5 * time.Second

	dataKeyMessage     = "key_message"
	dataKeyClickAction = "click_action"
)

var tracer = otel.Tracer("github.com/ruteri/push-relay/api/pushhandler")

// Config controls the payload of broadcasts and the upstream call policy.
type Config struct {
	// Title is the notification title of every broadcast.
	Title string

	// DefaultBody is sent when a broadcast request carries no message.
	DefaultBody string

	// ClickAction is delivered in the data payload as click_action.
	ClickAction string

	// Icon is applied to web and android notifications when set.
	Icon string

	// UpstreamTimeout bounds every store and gateway call.
	UpstreamTimeout time.Duration

	// PruneInvalidTokens deletes registrations whose token the gateway
	// reports as unregistered.
	PruneInvalidTokens bool
}

func DefaultConfig() Config {
	return Config{
		Title:           DefaultTitle,
		DefaultBody:     DefaultBody,
		ClickAction:     DefaultClickAction,
		UpstreamTimeout: DefaultUpstreamTimeout,
	}
}

// Handler serves token registration and broadcast requests. It only holds
// the immutable platform handle, so concurrent requests share no state.
type Handler struct {
	platform platform.Handle
	cfg      Config
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewHandler creates a handler. Zero fields of cfg take their defaults.
func NewHandler(handle platform.Handle, cfg Config, m *metrics.Metrics, log *slog.Logger) *Handler {
	defaults := DefaultConfig()
	if cfg.Title == "" {
		cfg.Title = defaults.Title
	}
	if cfg.DefaultBody == "" {
		cfg.DefaultBody = defaults.DefaultBody
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = defaults.UpstreamTimeout
	}

	return &Handler{
		platform: handle,
		cfg:      cfg,
		metrics:  m,
		log:      log,
	}
}

// RegisterRoutes configures the HTTP router with the relay endpoints:
//   - POST /api/login - Store a device token
//   - POST /api/sendNotification - Send a message to every stored token
//
// Routes accept every method so that the handlers answer non-POST requests
// with the JSON envelope.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.HandleFunc(RegisterPath, h.HandleRegister)
	r.HandleFunc(BroadcastPath, h.HandleBroadcast)
}

// HandleRegister stores the token of a device under its phone number.
//
// Request body: {"phone": "...", "token": "..."}
//
// Status codes:
//   - 200 OK: Token stored
//   - 400 Bad Request: Missing fields or undecodable body
//   - 405 Method Not Allowed: Not a POST
//   - 500 Internal Server Error: Store failure or timeout
//   - 503 Service Unavailable: Platform initialization failed
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "pushhandler.register")
	defer span.End()

	client, err := h.preconditions(r)
	if err != nil {
		h.fail(w, span, h.metrics.Registrations, "", err)
		return
	}

	var req api.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, span, h.metrics.Registrations, "", err)
		return
	}

	key := strings.TrimSpace(req.ClientKey())
	token := strings.TrimSpace(req.Token)
	if token == "" {
		h.fail(w, span, h.metrics.Registrations, "", &interfaces.ValidationError{Message: msgMissingFields})
		return
	}
	if err := interfaces.ValidateKey(key); err != nil {
		h.fail(w, span, h.metrics.Registrations, "", err)
		return
	}

	err = h.upstream(ctx, "store.upsert", func(ctx context.Context) error {
		return client.Store.Upsert(ctx, key, token)
	})
	if err != nil {
		h.log.Error("Failed to save token", "err", err,
			slog.String("store", client.Store.Name()),
			slog.String("token", interfaces.TokenPrefix(token)))
		h.fail(w, span, h.metrics.Registrations, msgSaveFailed, err)
		return
	}

	h.log.Info("Token registered", slog.String("token", interfaces.TokenPrefix(token)))
	h.metrics.Registrations.WithLabelValues(metrics.OutcomeSuccess).Inc()
	writeJSON(w, h.log, http.StatusOK, api.Response{Success: true, Message: msgRegistered})
}

// HandleBroadcast sends one notification to every registered token.
//
// Request body: {"message": "..."}, optional.
//
// Status codes:
//   - 200 OK: Submitted, including when some or all recipients failed
//   - 400 Bad Request: Undecodable body
//   - 405 Method Not Allowed: Not a POST
//   - 500 Internal Server Error: Store or gateway failure, timeout
//   - 503 Service Unavailable: Platform initialization failed
func (h *Handler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "pushhandler.broadcast")
	defer span.End()

	client, err := h.preconditions(r)
	if err != nil {
		h.fail(w, span, h.metrics.Broadcasts, "", err)
		return
	}

	var req api.BroadcastRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, span, h.metrics.Broadcasts, "", err)
		return
	}

	body := strings.TrimSpace(req.Message)
	if body == "" {
		body = h.cfg.DefaultBody
	}

	var registrations []interfaces.Registration
	err = h.upstream(ctx, "store.list", func(ctx context.Context) error {
		var err error
		registrations, err = client.Store.List(ctx)
		return err
	})
	if err != nil {
		h.log.Error("Failed to retrieve tokens", "err", err, slog.String("store", client.Store.Name()))
		h.fail(w, span, h.metrics.Broadcasts, msgRetrieveFailed, err)
		return
	}

	recipients := make([]interfaces.Registration, 0, len(registrations))
	for _, reg := range registrations {
		if reg.Token != "" {
			recipients = append(recipients, reg)
		}
	}
	h.log.Info("Collected registration tokens", slog.Int("tokens", len(recipients)))
	span.SetAttributes(attribute.Int("recipients", len(recipients)))

	if len(recipients) == 0 {
		h.metrics.Broadcasts.WithLabelValues(metrics.OutcomeSuccess).Inc()
		writeJSON(w, h.log, http.StatusOK, api.Response{Success: true, Message: msgNoDevices})
		return
	}

	messages := make([]interfaces.PushMessage, len(recipients))
	for i, reg := range recipients {
		messages[i] = h.buildMessage(reg.Token, body)
	}

	var result *interfaces.BatchResult
	err = h.upstream(ctx, "gateway.send", func(ctx context.Context) error {
		var err error
		result, err = client.Gateway.Send(ctx, messages)
		return err
	})
	if err != nil {
		h.log.Error("Failed to send notifications", "err", err, slog.Int("recipients", len(recipients)))
		h.fail(w, span, h.metrics.Broadcasts, msgSendFailed, err)
		return
	}

	h.log.Info("Submitted broadcast",
		slog.Int("success", result.SuccessCount),
		slog.Int("failure", result.FailureCount))
	span.SetAttributes(
		attribute.Int("success_count", result.SuccessCount),
		attribute.Int("failure_count", result.FailureCount),
	)

	var unregistered []interfaces.Registration
	for i, res := range result.Results {
		if res.Success() {
			h.metrics.Deliveries.WithLabelValues("success", "").Inc()
			continue
		}

		h.metrics.Deliveries.WithLabelValues("failure", string(res.Code)).Inc()
		h.log.Warn("Delivery failed",
			slog.String("token", interfaces.TokenPrefix(res.Token)),
			slog.String("code", string(res.Code)),
			"err", res.Err)

		if res.Code == interfaces.FailureUnregistered && i < len(recipients) {
			unregistered = append(unregistered, recipients[i])
		}
	}

	if h.cfg.PruneInvalidTokens && len(unregistered) > 0 {
		h.prune(ctx, client.Store, unregistered)
	}

	successCount, failureCount := result.SuccessCount, result.FailureCount
	h.metrics.Broadcasts.WithLabelValues(metrics.OutcomeSuccess).Inc()
	writeJSON(w, h.log, http.StatusOK, api.Response{
		Success:      true,
		Message:      fmt.Sprintf(msgSent, successCount),
		SuccessCount: &successCount,
		FailureCount: &failureCount,
	})
}

func (h *Handler) buildMessage(token, body string) interfaces.PushMessage {
	data := map[string]string{dataKeyMessage: body}
	if h.cfg.ClickAction != "" {
		data[dataKeyClickAction] = h.cfg.ClickAction
	}

	return interfaces.PushMessage{
		Token: token,
		Notification: interfaces.Notification{
			Title: h.cfg.Title,
			Body:  body,
		},
		Data: data,
		Icon: h.cfg.Icon,
	}
}

// prune deletes registrations still holding a token the gateway reported as
// unregistered. A registration refreshed since the broadcast is kept.
func (h *Handler) prune(ctx context.Context, store interfaces.RegistrationStore, stale []interfaces.Registration) {
	for _, reg := range stale {
		var deleted bool
		err := h.upstream(ctx, "store.delete", func(ctx context.Context) error {
			var err error
			deleted, err = store.DeleteIfToken(ctx, reg.Key, reg.Token)
			return err
		})
		if err != nil {
			h.log.Warn("Failed to prune registration", "err", err,
				slog.String("token", interfaces.TokenPrefix(reg.Token)))
			continue
		}
		if deleted {
			h.metrics.PrunedTokens.Inc()
			h.log.Info("Pruned unregistered token", slog.String("token", interfaces.TokenPrefix(reg.Token)))
		}
	}
}

// preconditions checks the method, then the platform.
func (h *Handler) preconditions(r *http.Request) (*platform.Client, error) {
	if r.Method != http.MethodPost {
		return nil, &interfaces.MethodError{Method: r.Method, Allowed: http.MethodPost}
	}
	return h.platform.Client()
}

// upstream runs fn under the upstream timeout and records its latency.
func (h *Handler) upstream(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.UpstreamTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	h.metrics.UpstreamDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")

		var upstreamErr *interfaces.UpstreamError
		if !errors.As(err, &upstreamErr) {
			err = &interfaces.UpstreamError{Op: op, Err: err}
		}
	}
	return err
}

// fail converts err to its status code and writes the error envelope.
// message is used for upstream failures only.
func (h *Handler) fail(w http.ResponseWriter, span trace.Span, counter *prometheus.CounterVec, message string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	status, resp := errorResponse(err, message)
	if status == http.StatusMethodNotAllowed {
		w.Header().Set("Allow", http.MethodPost)
	}
	if status == http.StatusServiceUnavailable {
		h.log.Warn("Rejecting request, platform not initialized", "err", err)
	}

	counter.WithLabelValues(outcomeFor(status)).Inc()
	writeJSON(w, h.log, status, resp)
}

// errorResponse maps the error taxonomy onto HTTP.
func errorResponse(err error, message string) (int, api.Response) {
	var (
		methodErr     *interfaces.MethodError
		cfgErr        *interfaces.ConfigurationError
		validationErr *interfaces.ValidationError
	)

	switch {
	case errors.As(err, &methodErr):
		return http.StatusMethodNotAllowed, api.Response{Message: msgMethodNotAllowed}
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable, api.Response{Message: msgInitFailed, Details: cfgErr.Error()}
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, api.Response{Message: validationErr.Message}
	default:
		if message == "" {
			message = http.StatusText(http.StatusInternalServerError)
		}
		return http.StatusInternalServerError, api.Response{Message: message, Details: err.Error()}
	}
}

func outcomeFor(status int) string {
	switch status {
	case http.StatusOK:
		return metrics.OutcomeSuccess
	case http.StatusServiceUnavailable:
		return metrics.OutcomeUnavailable
	case http.StatusInternalServerError:
		return metrics.OutcomeUpstreamError
	default:
		return metrics.OutcomeInvalid
	}
}

// decodeBody reads a JSON object of at most maxBodySize bytes. An empty body
// leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &interfaces.ValidationError{Message: "Request body exceeds " + strconv.Itoa(maxBodySize) + " bytes."}
	}
	return &interfaces.ValidationError{Message: msgInvalidJSON}
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, resp api.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("Failed to encode response", "err", err)
	}
}
