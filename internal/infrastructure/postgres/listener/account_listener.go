// Package listener turns PostgreSQL notifications into sync jobs.
package listener

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	// ChannelName is the channel the linked_accounts insert trigger notifies.
	ChannelName       = "linked_account_registered"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

// Registration is the payload of a linked_account_registered notification.
type Registration struct {
	AccountID string `json:"account_id"`
}

// Submitter queues a sync of one account.
type Submitter interface {
	SubmitAccount(ctx context.Context, accountID string) error
}

// AccountListener submits a first sync for every newly registered account.
type AccountListener struct {
	connStr    string
	submitter  Submitter
	log        zerolog.Logger
	shutdownCh chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

// NewAccountListener creates a listener for registration notifications.
func NewAccountListener(connStr string, submitter Submitter, log zerolog.Logger) *AccountListener {
	return &AccountListener{
		connStr:    connStr,
		submitter:  submitter,
		log:        log.With().Str("component", "account_listener").Logger(),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening in a background goroutine.
func (l *AccountListener) Start(ctx context.Context) {
	go l.listen(ctx)
	l.log.Info().Str("channel", ChannelName).Msg("Account listener started")
}

// Stop shuts the listener down and waits for it to exit.
func (l *AccountListener) Stop() {
	l.stopOnce.Do(func() { close(l.shutdownCh) })
	<-l.done
	l.log.Info().Msg("Account listener stopped")
}

func (l *AccountListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			l.log.Info().Msg("Reconnecting to PostgreSQL for notifications")
		}
	}
}

func (l *AccountListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.log.Debug().Msg("Connected to notification channel")
		case pq.ListenerEventDisconnected:
			l.log.Warn().Err(err).Msg("Disconnected from notification channel")
		case pq.ListenerEventReconnected:
			l.log.Info().Msg("Reconnected to notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			l.log.Error().Err(err).Msg("Notification connection attempt failed")
		}
	})
	defer listener.Close()

	if err := listener.Listen(ChannelName); err != nil {
		l.log.Error().Err(err).Str("channel", ChannelName).Msg("Failed to listen on channel")
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// connection lost; reconnect
				return
			}
			l.handle(ctx, n.Extra)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.log.Warn().Err(err).Msg("Listener ping failed")
				}
			}()
		}
	}
}

func (l *AccountListener) handle(ctx context.Context, payload string) {
	var reg Registration
	if err := json.Unmarshal([]byte(payload), &reg); err != nil {
		l.log.Error().Err(err).Str("payload", payload).Msg("Failed to parse notification payload")
		return
	}
	if reg.AccountID == "" {
		l.log.Warn().Str("payload", payload).Msg("Notification without account id")
		return
	}

	if err := l.submitter.SubmitAccount(ctx, reg.AccountID); err != nil {
		l.log.Error().Err(err).Str("account_id", reg.AccountID).Msg("Failed to submit sync for new account")
		return
	}
	l.log.Info().Str("account_id", reg.AccountID).Msg("Submitted first sync for new account")
}
