// Package notify records user-facing notifications.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/store"
)

// Severity grades a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a non-blocking message shown to an organization's users.
type Notification struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Message        string    `json:"message" db:"message"`
	Severity       Severity  `json:"severity" db:"severity"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ErrEmptyMessage rejects notifications without text.
var ErrEmptyMessage = errors.New("notify: message required")

// StoreNotifier writes notifications into the notifications table.
type StoreNotifier struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewStoreNotifier constructs a StoreNotifier.
func NewStoreNotifier(st store.Store, logger *slog.Logger) *StoreNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreNotifier{store: st, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Notify inserts n, filling id, severity and timestamp when absent.
func (s *StoreNotifier) Notify(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.Message) == "" {
		return ErrEmptyMessage
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	err := s.store.Insert(ctx, n.OrganizationID, store.TableNotifications, store.Record{
		"id":         n.ID,
		"message":    n.Message,
		"severity":   string(n.Severity),
		"created_at": n.CreatedAt,
	})
	if err != nil {
		return err
	}
	s.logger.Debug("notification stored",
		slog.String("organization_id", n.OrganizationID),
		slog.String("severity", string(n.Severity)))
	return nil
}
