package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry_TypedBeforeWildcard(t *testing.T) {
	r := NewHandlerRegistry()
	wild := &testHandler{name: "wild"}
	typed := &testHandler{name: "typed"}

	r.Register(wild)
	r.Register(typed, "label_ready")

	handlers := r.GetHandlers("label_ready")
	assert.Len(t, handlers, 2)
	assert.Same(t, typed, handlers[0])
	assert.Same(t, wild, handlers[1])

	assert.Len(t, r.GetHandlers("status_changed"), 1)
}

func TestHandlerRegistry_MultipleTypes(t *testing.T) {
	r := NewHandlerRegistry()
	h := &testHandler{name: "h"}
	r.Register(h, "status_changed", "label_ready")

	assert.Len(t, r.GetHandlers("status_changed"), 1)
	assert.Len(t, r.GetHandlers("label_ready"), 1)
	assert.Empty(t, r.GetHandlers("label_requested"))
	assert.Equal(t, 1, r.Count())
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	r := NewHandlerRegistry()
	a := &testHandler{name: "a"}
	b := &testHandler{name: "b"}
	r.Register(a, "status_changed")
	r.Register(b, "status_changed")
	r.Register(a)

	r.Unregister(a)

	handlers := r.GetHandlers("status_changed")
	assert.Len(t, handlers, 1)
	assert.Same(t, b, handlers[0])
	assert.Equal(t, 1, r.Count())

	r.Unregister(b)
	assert.Empty(t, r.GetHandlers("status_changed"))
	assert.Equal(t, 0, r.Count())
}

func TestHandlerRegistry_GetHandlersReturnsCopy(t *testing.T) {
	r := NewHandlerRegistry()
	r.Register(&testHandler{name: "a"}, "x")

	handlers := r.GetHandlers("x")
	handlers[0] = nil

	assert.NotNil(t, r.GetHandlers("x")[0])
}
