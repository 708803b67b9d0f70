package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	b := New()
	id1, ch1 := b.Subscribe(4)
	id2, ch2 := b.Subscribe(4)
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	b.PublishNew(EventTaskCreated, "01ARZ", map[string]string{"user_id": "u1"})

	e1 := <-ch1
	e2 := <-ch2
	assert.Equal(t, EventTaskCreated, e1.Type)
	assert.Equal(t, "01ARZ", e1.ResourceID)
	assert.Equal(t, e1.ID, e2.ID)
	require.NotEmpty(t, e1.ID)
}

func TestBusDropsWhenBufferFull(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)
	defer b.Unsubscribe(id)

	b.PublishNew(EventTaskCreated, "a", nil)
	b.PublishNew(EventTaskUpdated, "b", nil)

	e := <-ch
	assert.Equal(t, "a", e.ResourceID)
	select {
	case e := <-ch:
		t.Fatalf("expected second event to be dropped, got %v", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)
	b.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
}
