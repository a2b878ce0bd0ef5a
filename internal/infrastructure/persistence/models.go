package persistence

import "github.com/fulfillment/backend/internal/domain/fulfillment"

// Models lists every persisted fulfillment model in dependency order
func Models() []any {
	return []any{
		&fulfillment.Order{},
		&fulfillment.Item{},
		&fulfillment.LabelArtifact{},
		&fulfillment.Notification{},
		&fulfillment.ActivityEntry{},
	}
}
