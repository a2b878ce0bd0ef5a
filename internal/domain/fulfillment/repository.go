package fulfillment

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// ItemRepository persists items
type ItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Item, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Item, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	Create(ctx context.Context, item *Item) error
	// SaveWithLock writes the item only if its stored version matches and bumps it
	SaveWithLock(ctx context.Context, item *Item) error
}

// OrderRepository persists orders
type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByBundleKey(ctx context.Context, bundleKey string) (*Order, error)
	Create(ctx context.Context, order *Order) error
	SaveWithLock(ctx context.Context, order *Order) error
	GenerateOrderNumber(ctx context.Context) (string, error)
}

// LabelArtifactRepository persists label artifacts
type LabelArtifactRepository interface {
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*LabelArtifact, error)
	Save(ctx context.Context, artifact *LabelArtifact) error
}

// NotificationFilter selects notifications for a role
type NotificationFilter struct {
	Role       Role
	Since      *time.Time
	UnreadOnly bool
	Limit      int
}

// NotificationRepository persists notifications
type NotificationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	FindByDedupKey(ctx context.Context, dedupKey string) ([]Notification, error)
	// Create returns shared.ErrConflict when the dedup key already exists for the role
	Create(ctx context.Context, n *Notification) error
	FindForRole(ctx context.Context, filter NotificationFilter) ([]Notification, error)
	MarkRead(ctx context.Context, n *Notification) error
}

// ActivityRepository appends audit entries
type ActivityRepository interface {
	Append(ctx context.Context, entry *ActivityEntry) error
}

// Store groups the repositories and runs units of work
type Store interface {
	Items() ItemRepository
	Orders() OrderRepository
	Labels() LabelArtifactRepository
	Notifications() NotificationRepository
	Activities() ActivityRepository
	// Transaction runs fn against a store bound to one transaction
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// LabelStore keeps label document bytes outside the database
type LabelStore interface {
	// Put stores the document and returns its reference
	Put(ctx context.Context, orderNumber string, data []byte) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// URL returns a direct download URL, or "" when the store cannot produce one
	URL(ctx context.Context, ref string) (string, error)
}

// NotificationPublisher pushes a persisted notification to live subscribers
type NotificationPublisher interface {
	Publish(ctx context.Context, n *Notification) error
}

// NotificationSubscriber receives notifications pushed for a role
type NotificationSubscriber interface {
	Subscribe(role Role) (ch <-chan *Notification, cancel func())
}
