// Package firebase reports failed sync runs through Firebase Cloud Messaging.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"budgetsync/internal/domain/budgetsync"
	"budgetsync/internal/shared/messages"
)

const (
	fcmBatchLimit = 500
	maxErrorLen   = 300
)

// Sender is the subset of *messaging.Client the notifier uses.
type Sender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Notifier implements budgetsync.Notifier on FCM. Failures go to a topic, to
// a fixed set of device tokens, or both.
type Notifier struct {
	sender Sender
	topic  string
	msgs   *messages.Messages
	log    zerolog.Logger

	mu     sync.Mutex
	tokens []string
}

var _ budgetsync.Notifier = (*Notifier)(nil)

// Config selects the notification targets.
type Config struct {
	CredentialsFile string
	Topic           string
	DeviceTokens    []string
	// MessagesFile overrides the notification texts; empty keeps the defaults.
	MessagesFile string
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMessages sets the notification texts.
func WithMessages(m *messages.Messages) Option {
	return func(n *Notifier) { n.msgs = m }
}

// NewNotifier initializes a Firebase app and returns a notifier backed by its
// messaging client.
func NewNotifier(ctx context.Context, cfg Config, log zerolog.Logger) (*Notifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	msgs, err := messages.Load(cfg.MessagesFile)
	if err != nil {
		return nil, err
	}

	return NewNotifierWithSender(msgClient, cfg.Topic, cfg.DeviceTokens, log, WithMessages(msgs)), nil
}

// NewNotifierWithSender builds a notifier over an existing sender.
func NewNotifierWithSender(sender Sender, topic string, tokens []string, log zerolog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		sender: sender,
		topic:  topic,
		tokens: slices.Clone(tokens),
		msgs:   messages.Default(),
		log:    log.With().Str("component", "firebase").Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifySyncFailure pushes a failed-run notification.
func (n *Notifier) NotifySyncFailure(ctx context.Context, f budgetsync.Failure) error {
	data := failureData(f)
	text := n.msgs.SyncFailure.Render(map[string]string{
		"account_id":     f.AccountID,
		"sync_record_id": f.SyncRecordID,
		"kind":           string(f.Kind),
	})
	title, body := text.Title, text.Body

	var errs []error
	if n.topic != "" {
		if err := n.sendTopic(ctx, title, body, data); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.sendMulticast(ctx, n.Tokens(), title, body, data); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Tokens returns the device tokens still considered valid.
func (n *Notifier) Tokens() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.tokens)
}

func (n *Notifier) sendTopic(ctx context.Context, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Topic: n.topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if _, err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send FCM message to topic %s: %w", n.topic, err)
	}
	return nil
}

// sendMulticast batches into chunks of 500 (Firebase API limit).
func (n *Notifier) sendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}

	var totalSuccess, totalFailure int
	for _, batch := range chunkTokens(tokens, fcmBatchLimit) {
		msg := &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
			Data: data,
		}

		resp, err := n.sender.SendEachForMulticast(ctx, msg)
		if err != nil {
			return fmt.Errorf("failed to send FCM multicast: %w", err)
		}

		totalSuccess += resp.SuccessCount
		totalFailure += resp.FailureCount
		if resp.FailureCount > 0 {
			n.handleMulticastFailures(batch, resp)
		}
	}

	n.log.Debug().Int("success", totalSuccess).Int("failure", totalFailure).Msg("FCM multicast sent")
	return nil
}

func (n *Notifier) handleMulticastFailures(tokens []string, resp *messaging.BatchResponse) {
	for i, sendResp := range resp.Responses {
		if sendResp.Error == nil {
			continue
		}
		if messaging.IsUnregistered(sendResp.Error) || messaging.IsInvalidArgument(sendResp.Error) {
			n.log.Warn().Err(sendResp.Error).Int("index", i).Msg("Dropping invalid FCM token")
			n.dropToken(tokens[i])
		} else {
			n.log.Error().Err(sendResp.Error).Int("index", i).Msg("FCM send error")
		}
	}
}

func (n *Notifier) dropToken(token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens = slices.DeleteFunc(n.tokens, func(t string) bool { return t == token })
}

func failureData(f budgetsync.Failure) map[string]string {
	data := map[string]string{
		"type":           "sync_failure",
		"account_id":     f.AccountID,
		"sync_record_id": f.SyncRecordID,
		"kind":           string(f.Kind),
	}
	if f.Err != nil {
		msg := f.Err.Error()
		if len(msg) > maxErrorLen {
			msg = msg[:maxErrorLen]
		}
		data["error"] = msg
	}
	return data
}

func chunkTokens(tokens []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(tokens); i += size {
		end := min(i+size, len(tokens))
		chunks = append(chunks, tokens[i:end])
	}
	return chunks
}
