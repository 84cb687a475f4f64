package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitReachesTypedSubscribers(t *testing.T) {
	b := NewBus()

	var placed []string
	Subscribe(b, func(ev ObjectPlaced) { placed = append(placed, ev.ObjectID) })
	Subscribe(b, func(ev ObjectRemoved) { t.Fatalf("wrong type delivered: %+v", ev) })

	Emit(b, ObjectPlaced{MapName: "meadow", ObjectID: "o1"})
	Emit(b, ObjectPlaced{MapName: "meadow", ObjectID: "o2"})

	assert.Equal(t, []string{"o1", "o2"}, placed)
}

func TestEmitWithoutSubscribersIsNoop(t *testing.T) {
	b := NewBus()
	assert.NotPanics(t, func() { Emit(b, MapEdited{MapName: "meadow"}) })
}

func TestMultipleSubscribersInOrder(t *testing.T) {
	b := NewBus()

	var order []int
	Subscribe(b, func(MapEdited) { order = append(order, 1) })
	Subscribe(b, func(MapEdited) { order = append(order, 2) })

	Emit(b, MapEdited{MapName: "meadow"})
	assert.Equal(t, []int{1, 2}, order)
}
