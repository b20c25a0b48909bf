package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/ruteri/push-relay/interfaces"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
)

// MaxBatchSize is the largest number of messages FCM accepts per SendEach call.
const MaxBatchSize = 500

const clickActionKey = "click_action"

var tracer = otel.Tracer("github.com/ruteri/push-relay/push")

// MessagingClient is the subset of *messaging.Client used by FCMGateway.
type MessagingClient interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
	SendEachDryRun(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

// FCMGateway implements interfaces.PushGateway on Firebase Cloud Messaging.
type FCMGateway struct {
	client   MessagingClient
	dryRun   bool
	classify func(error) interfaces.FailureCode
	log      *slog.Logger
}

// NewFCMGateway creates a gateway. With dryRun set FCM validates every
// message without delivering it.
func NewFCMGateway(client MessagingClient, dryRun bool, log *slog.Logger) *FCMGateway {
	return &FCMGateway{
		client:   client,
		dryRun:   dryRun,
		classify: ClassifyError,
		log:      log,
	}
}

// Send submits messages in chunks of MaxBatchSize. A failed chunk aborts the
// submission; chunks already accepted are not rolled back.
//
// SendEach reports transport, authentication and deadline failures per
// message rather than as a call error. A chunk in which nothing was accepted
// and every failure is of that kind is a failed submission.
func (g *FCMGateway) Send(ctx context.Context, messages []interfaces.PushMessage) (*interfaces.BatchResult, error) {
	result := &interfaces.BatchResult{
		Results: make([]interfaces.SendResult, 0, len(messages)),
	}

	for start := 0; start < len(messages); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(messages))
		chunk := messages[start:end]

		resp, err := g.sendChunk(ctx, chunk)
		if err != nil {
			return nil, &interfaces.UpstreamError{Op: "fcm send", Err: err}
		}
		if len(resp.Responses) != len(chunk) {
			return nil, &interfaces.UpstreamError{
				Op:  "fcm send",
				Err: fmt.Errorf("got %d responses for %d messages", len(resp.Responses), len(chunk)),
			}
		}

		var transportErr error
		transportFailures := 0
		chunkResults := make([]interfaces.SendResult, len(chunk))
		for i, r := range resp.Responses {
			sr := interfaces.SendResult{Token: chunk[i].Token}
			if r.Success {
				sr.MessageID = r.MessageID
				chunkResults[i] = sr
				continue
			}

			sr.Err = r.Error
			if sr.Err == nil {
				sr.Err = fmt.Errorf("delivery failed without error detail")
			}
			sr.Code = g.classify(r.Error)
			if isTransportFailure(sr.Code, sr.Err) {
				transportFailures++
				if transportErr == nil {
					transportErr = sr.Err
				}
			}
			chunkResults[i] = sr
		}

		if len(chunk) > 0 && transportFailures == len(chunk) {
			return nil, &interfaces.UpstreamError{
				Op:  "fcm send",
				Err: fmt.Errorf("all %d messages failed: %w", len(chunk), transportErr),
			}
		}

		for _, sr := range chunkResults {
			if sr.Success() {
				result.SuccessCount++
			} else {
				result.FailureCount++
			}
			result.Results = append(result.Results, sr)
		}
	}

	return result, nil
}

func (g *FCMGateway) sendChunk(ctx context.Context, chunk []interfaces.PushMessage) (*messaging.BatchResponse, error) {
	ctx, span := tracer.Start(ctx, "fcm.SendEach")
	defer span.End()
	span.SetAttributes(
		attribute.Int("messages", len(chunk)),
		attribute.Bool("dry_run", g.dryRun),
	)

	msgs := make([]*messaging.Message, len(chunk))
	for i, m := range chunk {
		msgs[i] = BuildMessage(m)
	}

	start := time.Now()
	var resp *messaging.BatchResponse
	var err error
	if g.dryRun {
		resp, err = g.client.SendEachDryRun(ctx, msgs)
	} else {
		resp, err = g.client.SendEach(ctx, msgs)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("success_count", resp.SuccessCount),
		attribute.Int("failure_count", resp.FailureCount),
	)
	g.log.Debug("Submitted FCM batch",
		slog.Int("messages", len(chunk)),
		slog.Int("success", resp.SuccessCount),
		slog.Int("failure", resp.FailureCount),
		slog.Duration("duration", time.Since(start)))

	return resp, nil
}

// BuildMessage converts a PushMessage into its FCM representation.
func BuildMessage(m interfaces.PushMessage) *messaging.Message {
	msg := &messaging.Message{
		Token: m.Token,
		Notification: &messaging.Notification{
			Title: m.Notification.Title,
			Body:  m.Notification.Body,
		},
		Data: m.Data,
	}

	clickAction := m.Data[clickActionKey]
	if m.Icon != "" || clickAction != "" {
		msg.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				Icon:        m.Icon,
				ClickAction: clickAction,
			},
		}
	}
	if m.Icon != "" {
		msg.Webpush = &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Icon: m.Icon,
			},
		}
	}

	return msg
}

// isTransportFailure reports whether a per-message error came from reaching
// FCM at all rather than from FCM rejecting the message.
func isTransportFailure(code interfaces.FailureCode, err error) bool {
	var retrieveErr *oauth2.RetrieveError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return true
	case errors.As(err, &retrieveErr):
		return true
	default:
		return code == interfaces.FailureUnknown
	}
}

// ClassifyError maps an FCM per-message error to a FailureCode.
func ClassifyError(err error) interfaces.FailureCode {
	switch {
	case err == nil:
		return ""
	case messaging.IsUnregistered(err):
		return interfaces.FailureUnregistered
	case messaging.IsInvalidArgument(err):
		return interfaces.FailureInvalidArgument
	case messaging.IsQuotaExceeded(err):
		return interfaces.FailureQuotaExceeded
	case messaging.IsSenderIDMismatch(err):
		return interfaces.FailureSenderIDMismatch
	case messaging.IsThirdPartyAuthError(err):
		return interfaces.FailureThirdPartyAuthError
	case messaging.IsUnavailable(err):
		return interfaces.FailureUnavailable
	case messaging.IsInternal(err):
		return interfaces.FailureInternal
	default:
		return interfaces.FailureUnknown
	}
}
