package collab

import (
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestEventBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	aCount := 0
	bCount := 0
	unsubA := bus.Subscribe(func(notification *Notification) {
		aCount += 1
	})
	unsubB := bus.Subscribe(func(notification *Notification) {
		bCount += 1
	})
	defer unsubB()

	bus.Publish(&Notification{Kind: NotificationRequestReceived})
	assert.Equal(t, 1, aCount)
	assert.Equal(t, 1, bCount)

	unsubA()
	bus.Publish(&Notification{Kind: NotificationRequestAccepted})
	assert.Equal(t, 1, aCount)
	assert.Equal(t, 2, bCount)
}

func TestEventBusContainsPanics(t *testing.T) {
	bus := NewEventBus()

	delivered := 0
	unsubBad := bus.Subscribe(func(notification *Notification) {
		panic("subscriber bug")
	})
	defer unsubBad()
	unsub := bus.Subscribe(func(notification *Notification) {
		delivered += 1
	})
	defer unsub()

	// one faulty subscriber never blocks delivery to the others
	bus.Publish(&Notification{Kind: NotificationRequestReceived})
	assert.Equal(t, 1, delivered)
}

func TestReadMarkersNotifiedDedup(t *testing.T) {
	store := NewMemoryLocalStore()
	viewer := testIdentity(1)
	markers := NewReadMarkers(store, viewer)

	request := RequestAddress(viewer, ProjectAddress(testIdentity(2), "aurora"))

	// first sighting marks and reports unseen
	assert.Equal(t, false, markers.Notified(request, RequestStatusUnderReview))
	assert.Equal(t, true, markers.Notified(request, RequestStatusUnderReview))

	// a new status for the same request is a new sighting
	assert.Equal(t, false, markers.Notified(request, RequestStatusAccepted))
	assert.Equal(t, true, markers.Notified(request, RequestStatusAccepted))
}

func TestReadMarkersAcknowledge(t *testing.T) {
	store := NewMemoryLocalStore()
	viewer := testIdentity(1)
	markers := NewReadMarkers(store, viewer)

	request := RequestAddress(viewer, ProjectAddress(testIdentity(2), "aurora"))

	_, ok := markers.AcknowledgedStatus(request)
	assert.Equal(t, false, ok)

	markers.Acknowledge(request, RequestStatusAccepted)
	status, ok := markers.AcknowledgedStatus(request)
	assert.Equal(t, true, ok)
	assert.Equal(t, RequestStatusAccepted, status)

	// markers are per viewer
	other := NewReadMarkers(store, testIdentity(3))
	_, ok = other.AcknowledgedStatus(request)
	assert.Equal(t, false, ok)
}

func TestMarkerSetBounded(t *testing.T) {
	store := NewMemoryLocalStore()
	markers := newMarkerSet(store, testIdentity(1), "test", 8)

	for i := 0; i < 20; i += 1 {
		markers.set(fmt.Sprintf("key-%d", i), "1")
	}

	keys, err := store.Keys(markers.prefix)
	assert.Equal(t, err, nil)
	assert.Equal(t, 8, len(keys))

	// oldest writes were pruned first
	_, ok := markers.get("key-0")
	assert.Equal(t, false, ok)
	_, ok = markers.get("key-19")
	assert.Equal(t, true, ok)
	_, ok = markers.get("key-12")
	assert.Equal(t, true, ok)
}
