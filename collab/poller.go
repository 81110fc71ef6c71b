package collab

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Poller is the one timer-driven refresh loop per viewer session. Views
// subscribe to the synchronizer's snapshots instead of each polling the
// ledger themselves, which centralizes the re-entrancy guard and the
// backoff policy and removes redundant rpc load.

func DefaultPollerSettings() *PollerSettings {
	return &PollerSettings{
		PollInterval:  15 * time.Second,
		DebounceDelay: 200 * time.Millisecond,
	}
}

type PollerSettings struct {
	PollInterval time.Duration
	// a ledger change notification triggers a refresh after this delay,
	// coalescing bursts of related changes into one refetch
	DebounceDelay time.Duration
}

type Poller struct {
	ctx    context.Context
	cancel context.CancelFunc

	viewSync *ViewSync
	settings *PollerSettings

	wake *Monitor

	stateLock     sync.Mutex
	inFlight      bool
	debounceTimer *time.Timer

	unsubChanges func()
}

func NewPollerWithDefaults(ctx context.Context, viewSync *ViewSync) *Poller {
	return NewPoller(ctx, viewSync, DefaultPollerSettings())
}

func NewPoller(ctx context.Context, viewSync *ViewSync, settings *PollerSettings) *Poller {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &Poller{
		ctx:      cancelCtx,
		cancel:   cancel,
		viewSync: viewSync,
		settings: settings,
		wake:     NewMonitor(),
	}
}

// Run polls until the context closes. Call in a goroutine.
func (self *Poller) Run() {
	defer self.cancel()

	for {
		self.refreshOnce()

		notify := self.wake.NotifyChannel()
		select {
		case <-self.ctx.Done():
			return
		case <-notify:
		case <-time.After(self.settings.PollInterval):
		}
	}
}

// Wake triggers an immediate refresh, for focus and visibility events.
// If a refresh is already in flight the trigger is dropped: reads are
// idempotent and the in-flight result is about to arrive anyway.
func (self *Poller) Wake() {
	self.wake.NotifyAll()
}

// refreshOnce refreshes unless a prior invocation is still in flight.
func (self *Poller) refreshOnce() {
	self.stateLock.Lock()
	if self.inFlight {
		self.stateLock.Unlock()
		glog.V(2).Infof("[poll]refresh already in flight\n")
		return
	}
	self.inFlight = true
	self.stateLock.Unlock()

	defer func() {
		self.stateLock.Lock()
		self.inFlight = false
		self.stateLock.Unlock()
	}()

	Trace("poll refresh", func() {
		if _, err := self.viewSync.Refresh(self.ctx); err != nil {
			if !IsCanceled(err) {
				glog.Infof("[poll]refresh error = %s\n", err)
			}
		}
	})
}

// WatchChanges subscribes to the ledger change feed and wakes the poll
// loop after the debounce delay. Bursts of related account changes
// coalesce into one refetch.
func (self *Poller) WatchChanges() error {
	unsub, err := self.viewSync.ledger.SubscribeAccountChanges(self.ctx, AccountKindRequest, func(address Address) {
		self.debounceWake()
	})
	if err != nil {
		return err
	}
	self.unsubChanges = unsub
	return nil
}

func (self *Poller) debounceWake() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.debounceTimer != nil {
		// already scheduled, coalesce
		return
	}
	self.debounceTimer = time.AfterFunc(self.settings.DebounceDelay, func() {
		self.stateLock.Lock()
		self.debounceTimer = nil
		self.stateLock.Unlock()
		self.Wake()
	})
}

func (self *Poller) Close() {
	if self.unsubChanges != nil {
		self.unsubChanges()
	}
	self.cancel()
}
