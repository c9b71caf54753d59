package app

import (
	"context"
	"time"

	"sikap/api/internal/store"
)

const notificationListLimit = 20

func (s *Service) ListNotifications(ctx context.Context, session Session) (map[string]any, error) {
	items, err := s.store.ListNotifications(ctx, session.UserID, notificationListLimit)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.CountUnreadNotifications(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": mapEach(items, notificationPayload), "unreadCount": unread}, nil
}

func (s *Service) MarkNotificationsRead(ctx context.Context, session Session) (map[string]any, error) {
	updated, err := s.store.MarkNotificationsRead(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"updated": updated}, nil
}

// notificationWindow maps a delete range to creation-time bounds. "old" means
// older than 180 days; the others mean created within the window.
func notificationWindow(value string, now time.Time) (store.NotificationWindow, bool) {
	switch value {
	case "1h":
		return store.NotificationWindow{Since: now.Add(-time.Hour)}, true
	case "24h":
		return store.NotificationWindow{Since: now.Add(-24 * time.Hour)}, true
	case "7d":
		return store.NotificationWindow{Since: now.AddDate(0, 0, -7)}, true
	case "30d":
		return store.NotificationWindow{Since: now.AddDate(0, 0, -30)}, true
	case "old":
		return store.NotificationWindow{Before: now.AddDate(0, 0, -180)}, true
	case "all":
		return store.NotificationWindow{}, true
	default:
		return store.NotificationWindow{}, false
	}
}

func (s *Service) DeleteNotifications(ctx context.Context, session Session, rangeValue string) (map[string]any, error) {
	window, ok := notificationWindow(rangeValue, s.now())
	if !ok {
		return nil, validationError("range must be one of 1h, 24h, 7d, 30d, old, all")
	}
	deleted, err := s.store.DeleteNotifications(ctx, session.UserID, window)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": deleted}, nil
}
