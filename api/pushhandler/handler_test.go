package pushhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/push-relay/api"
	"github.com/ruteri/push-relay/interfaces"
	"github.com/ruteri/push-relay/metrics"
	"github.com/ruteri/push-relay/platform"
	"github.com/ruteri/push-relay/push"
	"github.com/ruteri/push-relay/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type testEnv struct {
	store   *storage.MemoryStore
	gateway *push.MockGateway
	metrics *metrics.Metrics
	router  chi.Router
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	env := &testEnv{
		store:   storage.NewMemoryStore(),
		gateway: &push.MockGateway{},
		metrics: metrics.NewMetrics("test", prometheus.NewRegistry()),
		router:  chi.NewRouter(),
	}
	handle := platform.Ready(platform.NewClient("test-project", env.store, env.gateway))
	NewHandler(handle, cfg, env.metrics, testLogger()).RegisterRoutes(env.router)
	return env
}

func newTestRouter(handle platform.Handle, cfg Config) (chi.Router, *metrics.Metrics) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	r := chi.NewRouter()
	NewHandler(handle, cfg, m, testLogger()).RegisterRoutes(r)
	return r, m
}

func do(t *testing.T, router http.Handler, method, path, body string) (int, api.Response) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var parsed api.Response
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(respBody, &parsed), string(respBody))
	return resp.StatusCode, parsed
}

// batchResult marks the listed tokens as failed with code.
func batchResult(tokens []string, failed map[string]interfaces.FailureCode) *interfaces.BatchResult {
	result := &interfaces.BatchResult{}
	for _, token := range tokens {
		code, ok := failed[token]
		if !ok {
			result.SuccessCount++
			result.Results = append(result.Results, interfaces.SendResult{Token: token, MessageID: "msg-" + token})
			continue
		}
		result.FailureCount++
		result.Results = append(result.Results, interfaces.SendResult{Token: token, Code: code, Err: errors.New(string(code))})
	}
	return result
}

func TestHandleRegister_Success(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	status, resp := do(t, env.router, http.MethodPost, RegisterPath, `{"phone":"+15550001","token":"fcm-token-a"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "Token registered successfully.", resp.Message)

	reg, err := env.store.Get(context.Background(), "+15550001")
	require.NoError(t, err)
	assert.Equal(t, "fcm-token-a", reg.Token)
	assert.False(t, reg.Timestamp.IsZero())

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Registrations.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestHandleRegister_LastWriteWins(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	status, _ := do(t, env.router, http.MethodPost, RegisterPath, `{"phone":"+15550001","token":"token-1"}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = do(t, env.router, http.MethodPost, RegisterPath, `{"phone":"+15550001","token":"token-2"}`)
	require.Equal(t, http.StatusOK, status)

	reg, err := env.store.Get(context.Background(), "+15550001")
	require.NoError(t, err)
	assert.Equal(t, "token-2", reg.Token)
	assert.Equal(t, 1, env.store.Len())
}

func TestHandleRegister_LegacyPhoneNumberField(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	status, _ := do(t, env.router, http.MethodPost, RegisterPath, `{"phoneNumber":"+15550009","token":"token"}`)
	require.Equal(t, http.StatusOK, status)

	_, err := env.store.Get(context.Background(), "+15550009")
	assert.NoError(t, err)

	// phone wins over the alias
	status, _ = do(t, env.router, http.MethodPost, RegisterPath, `{"phone":"+1","phoneNumber":"+2","token":"token"}`)
	require.Equal(t, http.StatusOK, status)
	_, err = env.store.Get(context.Background(), "+2")
	assert.ErrorIs(t, err, interfaces.ErrRegistrationNotFound)
}

func TestHandleRegister_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing phone", `{"token":"token"}`, "Missing phone number or token in request body."},
		{"missing token", `{"phone":"+1"}`, "Missing phone number or token in request body."},
		{"empty strings", `{"phone":"","token":""}`, "Missing phone number or token in request body."},
		{"whitespace", `{"phone":"  ","token":"token"}`, "Missing phone number or token in request body."},
		{"empty body", ``, "Missing phone number or token in request body."},
		{"invalid json", `{"phone":`, "Invalid JSON in request body."},
		{"wrong types", `{"phone":15550001,"token":"token"}`, "Invalid JSON in request body."},
		{"path separator", `{"phone":"a/b","token":"token"}`, "Phone number contains characters that cannot be stored."},
		{"dot dot", `{"phone":"..","token":"token"}`, "Phone number contains characters that cannot be stored."},
		{"reserved id", `{"phone":"__name__","token":"token"}`, "Phone number contains characters that cannot be stored."},
		{"too long", `{"phone":"` + strings.Repeat("1", interfaces.MaxKeyBytes+1) + `","token":"token"}`, "Phone number is too long."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, DefaultConfig())

			status, resp := do(t, env.router, http.MethodPost, RegisterPath, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, 0, env.store.Len(), "no write on invalid input")
		})
	}
}

func TestHandleRegister_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	body := `{"phone":"+1","token":"` + strings.Repeat("a", maxBodySize) + `"}`
	status, resp := do(t, env.router, http.MethodPost, RegisterPath, body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp.Message, "exceeds")
	assert.Equal(t, 0, env.store.Len())
}

func TestMethodNotAllowed(t *testing.T) {
	for _, path := range []string{RegisterPath, BroadcastPath} {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			t.Run(method+" "+path, func(t *testing.T) {
				env := newTestEnv(t, DefaultConfig())
				require.NoError(t, env.store.Upsert(context.Background(), "+1", "token"))

				req := httptest.NewRequest(method, path, strings.NewReader(`{"phone":"+2","token":"t"}`))
				w := httptest.NewRecorder()
				env.router.ServeHTTP(w, req)

				assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
				assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))

				var resp api.Response
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.False(t, resp.Success)
				assert.Equal(t, "Method Not Allowed", resp.Message)

				assert.Equal(t, 1, env.store.Len())
				env.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			})
		}
	}
}

func TestUninitializedPlatform(t *testing.T) {
	handle := platform.Failed(&interfaces.ConfigurationError{Field: "private_key", Reason: "missing"})
	router, m := newTestRouter(handle, DefaultConfig())

	for _, path := range []string{RegisterPath, BroadcastPath} {
		t.Run(path, func(t *testing.T) {
			status, resp := do(t, router, http.MethodPost, path, `{"phone":"+1","token":"token","message":"hi"}`)
			assert.Equal(t, http.StatusServiceUnavailable, status)
			assert.False(t, resp.Success)
			assert.Equal(t, "Server Initialization Failed", resp.Message)
			assert.Contains(t, resp.Details, "private_key")
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues(metrics.OutcomeUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues(metrics.OutcomeUnavailable)))
}

func TestUninitializedPlatform_MethodCheckedFirst(t *testing.T) {
	router, _ := newTestRouter(platform.Failed(errors.New("no credentials")), DefaultConfig())

	status, _ := do(t, router, http.MethodGet, RegisterPath, "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestHandleRegister_StoreFailure(t *testing.T) {
	store := &storage.MockStore{}
	store.On("Upsert", mock.Anything, "+1", "token").Return(interfaces.ErrStoreUnavailable)

	handle := platform.Ready(platform.NewClient("test", store, &push.MockGateway{}))
	router, m := newTestRouter(handle, DefaultConfig())

	status, resp := do(t, router, http.MethodPost, RegisterPath, `{"phone":"+1","token":"token"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to save token on server.", resp.Message)
	assert.Contains(t, resp.Details, "store.upsert")

	store.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues(metrics.OutcomeUpstreamError)))
}

func TestHandleRegister_StoreTimeout(t *testing.T) {
	store := &storage.MockStore{}
	store.On("Upsert", mock.Anything, "+1", "token").Return(context.DeadlineExceeded).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	})

	handle := platform.Ready(platform.NewClient("test", store, &push.MockGateway{}))
	cfg := DefaultConfig()
	cfg.UpstreamTimeout = 20 * time.Millisecond
	router, _ := newTestRouter(handle, cfg)

	status, resp := do(t, router, http.MethodPost, RegisterPath, `{"phone":"+1","token":"token"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, resp.Details, "deadline exceeded")
}

func TestHandleBroadcast_NoRegistrations(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	status, resp := do(t, env.router, http.MethodPost, BroadcastPath, `{"message":"hello"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "No registered devices found to send notification.", resp.Message)
	assert.Nil(t, resp.SuccessCount)

	env.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandleBroadcast_OnlyEmptyTokens(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.store.Upsert(context.Background(), "+1", ""))

	status, resp := do(t, env.router, http.MethodPost, BroadcastPath, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "No registered devices found to send notification.", resp.Message)
	env.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandleBroadcast_Payload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Icon = "https://example.com/icon.png"
	env := newTestEnv(t, cfg)

	ctx := context.Background()
	require.NoError(t, env.store.Upsert(ctx, "+1", "token-1"))
	require.NoError(t, env.store.Upsert(ctx, "+2", ""))
	require.NoError(t, env.store.Upsert(ctx, "+3", "token-3"))

	env.gateway.On("Send", mock.Anything, mock.MatchedBy(func(msgs []interfaces.PushMessage) bool {
		if len(msgs) != 2 || msgs[0].Token != "token-1" || msgs[1].Token != "token-3" {
			return false
		}
		for _, m := range msgs {
			if m.Notification.Title != DefaultTitle ||
				m.Notification.Body != DefaultBody ||
				m.Data["key_message"] != DefaultBody ||
				m.Data["click_action"] != DefaultClickAction ||
				m.Icon != cfg.Icon {
				return false
			}
		}
		return true
	})).Return(batchResult([]string{"token-1", "token-3"}, nil), nil)

	status, resp := do(t, env.router, http.MethodPost, BroadcastPath, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2 notifications sent successfully.", resp.Message)
	require.NotNil(t, resp.SuccessCount)
	assert.Equal(t, 2, *resp.SuccessCount)
	assert.Equal(t, 0, *resp.FailureCount)

	env.gateway.AssertExpectations(t)
}

func TestHandleBroadcast_CustomMessage(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.store.Upsert(context.Background(), "+1", "token-1"))

	env.gateway.On("Send", mock.Anything, mock.MatchedBy(func(msgs []interfaces.PushMessage) bool {
		return len(msgs) == 1 && msgs[0].Notification.Body == "Meeting moved to 3pm" && msgs[0].Data["key_message"] == "Meeting moved to 3pm"
	})).Return(batchResult([]string{"token-1"}, nil), nil)

	status, _ := do(t, env.router, http.MethodPost, BroadcastPath, `{"message":"Meeting moved to 3pm"}`)
	assert.Equal(t, http.StatusOK, status)
	env.gateway.AssertExpectations(t)
}

func TestHandleBroadcast_PartialFailure(t *testing.T) {
	tests := []struct {
		name   string
		failed map[string]interfaces.FailureCode
	}{
		{"one of three", map[string]interfaces.FailureCode{"token-2": interfaces.FailureInvalidArgument}},
		{"all fail", map[string]interfaces.FailureCode{
			"token-1": interfaces.FailureUnregistered,
			"token-2": interfaces.FailureUnavailable,
			"token-3": interfaces.FailureUnknown,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, DefaultConfig())
			tokens := []string{"token-1", "token-2", "token-3"}
			for i, token := range tokens {
				require.NoError(t, env.store.Upsert(context.Background(), "+"+string(rune('1'+i)), token))
			}
			env.gateway.On("Send", mock.Anything, mock.Anything).Return(batchResult(tokens, tt.failed), nil)

			status, resp := do(t, env.router, http.MethodPost, BroadcastPath, `{"message":"hi"}`)
			assert.Equal(t, http.StatusOK, status)
			assert.True(t, resp.Success)

			k := len(tt.failed)
			n := len(tokens) - k
			require.NotNil(t, resp.SuccessCount)
			require.NotNil(t, resp.FailureCount)
			assert.Equal(t, n, *resp.SuccessCount)
			assert.Equal(t, k, *resp.FailureCount)
			assert.Equal(t, len(tokens), *resp.SuccessCount+*resp.FailureCount)
			assert.Equal(t, fmt.Sprintf("%d notifications sent successfully.", n), resp.Message)

			// pruning is off by default
			assert.Equal(t, len(tokens), env.store.Len())
		})
	}
}

func TestHandleBroadcast_PrunesUnregisteredTokens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PruneInvalidTokens = true
	env := newTestEnv(t, cfg)

	ctx := context.Background()
	require.NoError(t, env.store.Upsert(ctx, "+1", "token-1"))
	require.NoError(t, env.store.Upsert(ctx, "+2", "token-2"))
	require.NoError(t, env.store.Upsert(ctx, "+3", "token-3"))

	env.gateway.On("Send", mock.Anything, mock.Anything).Return(batchResult(
		[]string{"token-1", "token-2", "token-3"},
		map[string]interfaces.FailureCode{
			"token-1": interfaces.FailureUnregistered,
			"token-2": interfaces.FailureQuotaExceeded,
		},
	), nil)

	status, resp := do(t, env.router, http.MethodPost, BroadcastPath, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, *resp.FailureCount)

	_, err := env.store.Get(ctx, "+1")
	assert.ErrorIs(t, err, interfaces.ErrRegistrationNotFound)
	_, err = env.store.Get(ctx, "+2")
	assert.NoError(t, err, "transient failures keep the registration")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.PrunedTokens))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Deliveries.WithLabelValues("failure", "unregistered")))
}

func TestHandleBroadcast_PruneKeepsRefreshedRegistration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PruneInvalidTokens = true
	env := newTestEnv(t, cfg)

	ctx := context.Background()
	require.NoError(t, env.store.Upsert(ctx, "+1", "token-old"))

	// the device re-registers while the broadcast is in flight
	env.gateway.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		require.NoError(t, env.store.Upsert(ctx, "+1", "token-new"))
	}).Return(batchResult([]string{"token-old"}, map[string]interfaces.FailureCode{"token-old": interfaces.FailureUnregistered}), nil)

	status, _ := do(t, env.router, http.MethodPost, BroadcastPath, "")
	assert.Equal(t, http.StatusOK, status)

	reg, err := env.store.Get(ctx, "+1")
	require.NoError(t, err)
	assert.Equal(t, "token-new", reg.Token)
}

func TestHandleBroadcast_GatewayFailure(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	require.NoError(t, env.store.Upsert(context.Background(), "+1", "token-1"))
	env.gateway.On("Send", mock.Anything, mock.Anything).Return(nil, errors.New("oauth2: cannot fetch token"))

	status, resp := do(t, env.router, http.MethodPost, BroadcastPath, "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to send notifications due to server error.", resp.Message)
	assert.Contains(t, resp.Details, "cannot fetch token")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Broadcasts.WithLabelValues(metrics.OutcomeUpstreamError)))
}

// perMessageErrorClient fails every message inside the batch response the
// way SendEach reports connection and credential problems. With wait set it
// first blocks until the request context ends.
type perMessageErrorClient struct {
	err  error
	wait bool
}

func (c *perMessageErrorClient) SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error) {
	err := c.err
	if c.wait {
		<-ctx.Done()
		err = ctx.Err()
	}

	resp := &messaging.BatchResponse{FailureCount: len(messages)}
	for range messages {
		resp.Responses = append(resp.Responses, &messaging.SendResponse{
			Error: &url.Error{Op: "Post", URL: "https://fcm.googleapis.com/v1/projects/test/messages:send", Err: err},
		})
	}
	return resp, nil
}

func (c *perMessageErrorClient) SendEachDryRun(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error) {
	return c.SendEach(ctx, messages)
}

func TestHandleBroadcast_FCMSubmissionFailures(t *testing.T) {
	tests := []struct {
		name    string
		client  *perMessageErrorClient
		details string
	}{
		{
			name:    "deadline",
			client:  &perMessageErrorClient{wait: true},
			details: "deadline exceeded",
		},
		{
			name: "token exchange",
			client: &perMessageErrorClient{err: &oauth2.RetrieveError{
				Response:  &http.Response{Status: "401 Unauthorized", StatusCode: http.StatusUnauthorized},
				ErrorCode: "invalid_grant",
			}},
			details: "invalid_grant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			require.NoError(t, store.Upsert(context.Background(), "+1", "token-1"))
			require.NoError(t, store.Upsert(context.Background(), "+2", "token-2"))

			gateway := push.NewFCMGateway(tt.client, false, testLogger())
			cfg := DefaultConfig()
			cfg.UpstreamTimeout = 50 * time.Millisecond
			router, m := newTestRouter(platform.Ready(platform.NewClient("test", store, gateway)), cfg)

			status, resp := do(t, router, http.MethodPost, BroadcastPath, "")
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.False(t, resp.Success)
			assert.Equal(t, "Failed to send notifications due to server error.", resp.Message)
			assert.Contains(t, resp.Details, tt.details)
			assert.Nil(t, resp.SuccessCount)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues(metrics.OutcomeUpstreamError)))
			assert.Zero(t, testutil.ToFloat64(m.Deliveries.WithLabelValues("failure", string(interfaces.FailureUnknown))))
		})
	}
}

func TestHandleBroadcast_StoreFailure(t *testing.T) {
	store := &storage.MockStore{}
	store.On("List", mock.Anything).Return(nil, interfaces.ErrStoreUnavailable)
	gateway := &push.MockGateway{}

	router, _ := newTestRouter(platform.Ready(platform.NewClient("test", store, gateway)), DefaultConfig())

	status, resp := do(t, router, http.MethodPost, BroadcastPath, "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to retrieve tokens from database.", resp.Message)
	gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandleBroadcast_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	status, resp := do(t, env.router, http.MethodPost, BroadcastPath, `{"message":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid JSON in request body.", resp.Message)
	env.gateway.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
