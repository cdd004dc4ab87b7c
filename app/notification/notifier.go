package notification

import (
	"context"
	"time"

	"lifemonitor/app/objects"
)

// Notifier publishes stored notifications to the sessions of their users.
type Notifier struct {
	bus Bus
}

func NewNotifier(bus Bus) *Notifier {
	return &Notifier{bus: bus}
}

func (n *Notifier) Notify(ctx context.Context, notification *objects.Notification, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	created := notification.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	payload := map[string]interface{}{
		"type": "notification",
		"data": []map[string]interface{}{{
			"uuid":    notification.ID,
			"type":    notification.Type,
			"name":    notification.Name,
			"created": created.UTC().Format(time.RFC3339),
			"data":    notification.Data,
		}},
	}
	return n.bus.Publish(ctx, NewMessage(payload, userIDs, nil))
}
