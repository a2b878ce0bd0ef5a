package shared

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type testEvent struct {
	BaseDomainEvent
}

func TestBaseAggregateRoot_PullDomainEvents(t *testing.T) {
	root := NewBaseAggregateRoot()
	assert.Equal(t, 1, root.GetVersion())
	assert.NotEqual(t, uuid.Nil, root.ID)

	root.AddDomainEvent(&testEvent{BaseDomainEvent: NewBaseDomainEvent("thing_happened", "Thing", root.ID)})
	root.AddDomainEvent(&testEvent{BaseDomainEvent: NewBaseDomainEvent("thing_happened", "Thing", root.ID)})

	events := root.PullDomainEvents()
	assert.Len(t, events, 2)
	assert.Equal(t, "thing_happened", events[0].EventType())
	assert.Empty(t, root.GetDomainEvents())
}
