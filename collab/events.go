package collab

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

// notifications surfaced to the end user

type NotificationKind string

const (
	NotificationRequestReceived    NotificationKind = "request_received"
	NotificationRequestAccepted    NotificationKind = "request_accepted"
	NotificationRequestRejected    NotificationKind = "request_rejected"
	NotificationRequestUnderReview NotificationKind = "request_under_review"
)

type Notification struct {
	Id        Id
	Kind      NotificationKind
	Request   *CollaborationRequest
	Message   string
	EventTime time.Time
}

type NotificationFunction = func(notification *Notification)

// EventBus is an explicit object passed to composition, with subscribe
// lifecycle tied to the subscriber. No package-level listener registries:
// those leak listeners across app instances.
type EventBus struct {
	notificationCallbacks *CallbackList[NotificationFunction]
}

func NewEventBus() *EventBus {
	return &EventBus{
		notificationCallbacks: NewCallbackList[NotificationFunction](),
	}
}

func (self *EventBus) Subscribe(notificationCallback NotificationFunction) func() {
	callbackId := self.notificationCallbacks.Add(notificationCallback)
	return func() {
		self.notificationCallbacks.Remove(callbackId)
	}
}

func (self *EventBus) Publish(notification *Notification) {
	for _, callback := range self.notificationCallbacks.Get() {
		HandleError(func() {
			callback(notification)
		})
	}
}

// MaxReadMarkers caps the client-local marker sets per viewer. Markers are
// pruned oldest write first, so the sets stay bounded no matter how long a
// session runs.
const MaxReadMarkers = 256

// markerSet is a bounded persisted set keyed by (viewer, entity), used for
// the "already notified" and "response acknowledged" read markers. These
// live outside the authoritative store and carry no authoritative meaning.
type markerSet struct {
	store  LocalStore
	prefix string
	max    int
}

func newMarkerSet(store LocalStore, viewer Identity, name string, max int) *markerSet {
	return &markerSet{
		store:  store,
		prefix: fmt.Sprintf("markers/%s/%s/", name, viewer),
		max:    max,
	}
}

func (self *markerSet) get(key string) (string, bool) {
	valueBytes, ok, err := self.store.Get(self.prefix + key)
	if err != nil || !ok {
		return "", false
	}
	return string(valueBytes), true
}

func (self *markerSet) set(key string, value string) {
	if err := self.store.Set(self.prefix+key, []byte(value)); err != nil {
		glog.Infof("[markers]set %s error = %s\n", key, err)
		return
	}
	self.prune()
}

func (self *markerSet) delete(key string) {
	self.store.Delete(self.prefix + key)
}

func (self *markerSet) prune() {
	keys, err := self.store.Keys(self.prefix)
	if err != nil {
		return
	}
	for i := 0; i < len(keys)-self.max; i += 1 {
		self.store.Delete(keys[i])
	}
}

// ReadMarkers tracks, per viewer, which sent-request status changes have
// been acknowledged and which notifications have already been shown.
type ReadMarkers struct {
	acknowledged *markerSet
	notified     *markerSet
}

func NewReadMarkers(store LocalStore, viewer Identity) *ReadMarkers {
	return &ReadMarkers{
		acknowledged: newMarkerSet(store, viewer, "ack", MaxReadMarkers),
		notified:     newMarkerSet(store, viewer, "notified", MaxReadMarkers),
	}
}

// AcknowledgedStatus returns the last status of the request the viewer has
// acknowledged seeing.
func (self *ReadMarkers) AcknowledgedStatus(request Address) (RequestStatus, bool) {
	value, ok := self.acknowledged.get(request.String())
	if !ok {
		return "", false
	}
	return RequestStatus(value), true
}

func (self *ReadMarkers) Acknowledge(request Address, status RequestStatus) {
	self.acknowledged.set(request.String(), string(status))
}

// Notified marks a (request, status) pair as already surfaced, and reports
// whether it had been surfaced before. Used to dedup toasts across polls.
func (self *ReadMarkers) Notified(request Address, status RequestStatus) bool {
	key := fmt.Sprintf("%s/%s", request, status)
	_, seen := self.notified.get(key)
	if !seen {
		self.notified.set(key, "1")
	}
	return seen
}
