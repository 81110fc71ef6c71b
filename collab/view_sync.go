package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
)

// ViewSync derives consistent, deduplicated, role-aware views of the
// viewer's directory state from the eventually consistent ledger. It is the
// one place that fetches, classifies, and publishes: badges, inbox tabs,
// dashboard stats and notifications all come from the same snapshot.

type SnapshotFunction = func(snapshot *Snapshot)

func DefaultViewSyncSettings() *ViewSyncSettings {
	return &ViewSyncSettings{
		Retry:   DefaultRetrySettings(),
		ListTtl: DefaultListTtl,
	}
}

type ViewSyncSettings struct {
	Retry   *RetrySettings
	ListTtl time.Duration
}

type ViewSync struct {
	ctx    context.Context
	cancel context.CancelFunc

	viewer Identity
	ledger LedgerClient
	bus    *EventBus

	settings *ViewSyncSettings

	cache   *TtlCache
	markers *ReadMarkers

	stateLock      sync.Mutex
	snapshot       *Snapshot
	lastFetchStart time.Time

	snapshotCallbacks *CallbackList[SnapshotFunction]
}

func NewViewSyncWithDefaults(ctx context.Context, viewer Identity, ledger LedgerClient, store LocalStore, bus *EventBus) *ViewSync {
	return NewViewSync(ctx, viewer, ledger, store, bus, DefaultViewSyncSettings())
}

func NewViewSync(ctx context.Context, viewer Identity, ledger LedgerClient, store LocalStore, bus *EventBus, settings *ViewSyncSettings) *ViewSync {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &ViewSync{
		ctx:               cancelCtx,
		cancel:            cancel,
		viewer:            viewer,
		ledger:            ledger,
		bus:               bus,
		settings:          settings,
		cache:             NewTtlCache(store, fmt.Sprintf("views/%s", viewer)),
		markers:           NewReadMarkers(store, viewer),
		snapshotCallbacks: NewCallbackList[SnapshotFunction](),
	}
}

func (self *ViewSync) Viewer() Identity {
	return self.viewer
}

func (self *ViewSync) Close() {
	self.cancel()
}

// AddSnapshotCallback subscribes to published snapshots. The returned
// function unsubscribes.
func (self *ViewSync) AddSnapshotCallback(snapshotCallback SnapshotFunction) func() {
	callbackId := self.snapshotCallbacks.Add(snapshotCallback)
	return func() {
		self.snapshotCallbacks.Remove(callbackId)
	}
}

// Snapshot returns the last published snapshot, or nil before the first
// refresh.
func (self *ViewSync) Snapshot() *Snapshot {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.snapshot
}

// CachedSnapshot paints an interim view from the ttl cache. Callers must
// still refresh: the cached value is never authoritative.
func (self *ViewSync) CachedSnapshot() (*Snapshot, bool) {
	var cached cachedSnapshot
	if !self.cache.Get("snapshot", &cached) {
		return nil, false
	}
	snapshot := self.derive(cached.Requests, cached.Projects, cached.Profile, cached.ProfileLegacy, cached.FetchTime)
	snapshot.Stale = true
	return snapshot, true
}

// cachedSnapshot is the raw material of a snapshot. Derived fields are
// recomputed on load so read markers are always applied fresh.
type cachedSnapshot struct {
	FetchTime     time.Time               `json:"fetch_time"`
	Profile       *Profile                `json:"profile,omitempty"`
	ProfileLegacy bool                    `json:"profile_legacy,omitempty"`
	Projects      []*Project              `json:"projects"`
	Requests      []*CollaborationRequest `json:"requests"`
}

// Refresh fetches the viewer's world, classifies it, publishes the
// snapshot, and queues notifications for changes not yet surfaced.
func (self *ViewSync) Refresh(ctx context.Context) (*Snapshot, error) {
	return self.refresh(ctx, ConsistencyProcessed)
}

func (self *ViewSync) refresh(ctx context.Context, consistency Consistency) (*Snapshot, error) {
	fetchStart := time.Now()

	requests, projects, profile, profileLegacy, err := self.fetchWorld(ctx, consistency)
	if err != nil {
		return nil, err
	}

	snapshot := self.derive(requests, projects, profile, profileLegacy, fetchStart)

	published := self.publish(snapshot, fetchStart)
	if !published {
		// a newer refresh resolved first. Last write wins by fetch start
		// order, so discard this one.
		glog.V(2).Infof("[views]discard stale refresh (%d)\n", fetchStart.UnixMilli())
		return self.Snapshot(), nil
	}

	self.cache.Set("snapshot", &cachedSnapshot{
		FetchTime:     fetchStart,
		Profile:       profile,
		ProfileLegacy: profileLegacy,
		Projects:      projects,
		Requests:      requests,
	}, self.settings.ListTtl)

	self.queueNotifications(snapshot)

	return snapshot, nil
}

func (self *ViewSync) fetchWorld(ctx context.Context, consistency Consistency) ([]*CollaborationRequest, []*Project, *Profile, bool, error) {
	sentAccounts, err := RetryTransient(ctx, self.settings.Retry, func() ([]*Account, error) {
		return self.ledger.ListAccounts(ctx, AccountKindRequest, []AccountFilter{FilterRequestsFrom(self.viewer)})
	})
	if err != nil {
		return nil, nil, nil, false, err
	}
	receivedAccounts, err := RetryTransient(ctx, self.settings.Retry, func() ([]*Account, error) {
		return self.ledger.ListAccounts(ctx, AccountKindRequest, []AccountFilter{FilterRequestsTo(self.viewer)})
	})
	if err != nil {
		return nil, nil, nil, false, err
	}
	projectAccounts, err := RetryTransient(ctx, self.settings.Retry, func() ([]*Account, error) {
		return self.ledger.ListAccounts(ctx, AccountKindProject, nil)
	})
	if err != nil {
		return nil, nil, nil, false, err
	}

	// a sent request to self would appear in both listings
	requestsByAddress := map[Address]*CollaborationRequest{}
	for _, request := range DecodeCurrentRequests(append(sentAccounts, receivedAccounts...)) {
		requestsByAddress[request.Address] = request
	}
	requests := maps.Values(requestsByAddress)

	projects := DecodeCurrentProjects(projectAccounts)

	profile, profileLegacy, err := self.GetProfile(ctx, self.viewer, consistency)
	if err != nil {
		return nil, nil, nil, false, err
	}

	return requests, projects, profile, profileLegacy, nil
}

func (self *ViewSync) derive(requests []*CollaborationRequest, projects []*Project, profile *Profile, profileLegacy bool, fetchTime time.Time) *Snapshot {
	partition := PartitionRequests(self.viewer, requests)

	acknowledged := map[Address]RequestStatus{}
	for _, request := range partition.AllSent() {
		if status, ok := self.markers.AcknowledgedStatus(request.Address); ok {
			acknowledged[request.Address] = status
		}
	}

	return &Snapshot{
		FetchTime:     fetchTime,
		Viewer:        self.viewer,
		Profile:       profile,
		ProfileLegacy: profileLegacy,
		Projects:      projects,
		Requests:      partition,
		Badges:        DeriveBadges(partition, acknowledged),
		Stats:         DeriveStats(self.viewer, projects, partition),
	}
}

// publish installs the snapshot and fans it out, unless an in-flight
// refresh that started later already resolved.
func (self *ViewSync) publish(snapshot *Snapshot, fetchStart time.Time) bool {
	self.stateLock.Lock()
	if fetchStart.Before(self.lastFetchStart) {
		self.stateLock.Unlock()
		return false
	}
	self.lastFetchStart = fetchStart
	self.snapshot = snapshot
	self.stateLock.Unlock()

	for _, callback := range self.snapshotCallbacks.Get() {
		HandleError(func() {
			callback(snapshot)
		})
	}
	return true
}

// queueNotifications diffs the snapshot against the notified marker set
// and publishes a toast per change the viewer has not seen. Re-polling the
// same state never notifies twice.
func (self *ViewSync) queueNotifications(snapshot *Snapshot) {
	if self.bus == nil {
		return
	}
	for _, request := range snapshot.Requests.Received[RequestStatusPending] {
		if self.markers.Notified(request.Address, request.Status) {
			continue
		}
		self.bus.Publish(&Notification{
			Id:        NewId(),
			Kind:      NotificationRequestReceived,
			Request:   request,
			Message:   request.Message,
			EventTime: time.Now(),
		})
	}
	for _, request := range snapshot.Requests.AllSent() {
		if request.Status == RequestStatusPending {
			continue
		}
		if self.markers.Notified(request.Address, request.Status) {
			continue
		}
		var kind NotificationKind
		switch request.Status {
		case RequestStatusUnderReview:
			kind = NotificationRequestUnderReview
		case RequestStatusAccepted:
			kind = NotificationRequestAccepted
		case RequestStatusRejected:
			kind = NotificationRequestRejected
		default:
			continue
		}
		self.bus.Publish(&Notification{
			Id:        NewId(),
			Kind:      kind,
			Request:   request,
			Message:   request.Reply,
			EventTime: time.Now(),
		})
	}
}

// AcknowledgeResponses marks all current sent-request statuses as read and
// republishes the snapshot with the badge cleared.
func (self *ViewSync) AcknowledgeResponses() {
	snapshot := self.Snapshot()
	if snapshot == nil {
		return
	}
	for _, request := range snapshot.Requests.AllSent() {
		if request.Status != RequestStatusPending {
			self.markers.Acknowledge(request.Address, request.Status)
		}
	}

	next := snapshot.Clone()
	acknowledged := map[Address]RequestStatus{}
	for _, request := range next.Requests.AllSent() {
		if status, ok := self.markers.AcknowledgedStatus(request.Address); ok {
			acknowledged[request.Address] = status
		}
	}
	next.Badges = DeriveBadges(next.Requests, acknowledged)
	self.publish(next, next.FetchTime)
}

// GetProfile reads one profile by identity. nil with legacy=false means no
// profile exists, which drives the "create your profile" branch. A legacy
// profile reports legacy=true: the derived address is occupied, so callers
// render a terminal "unsupported" state, never the create prompt.
func (self *ViewSync) GetProfile(ctx context.Context, identity Identity, consistency Consistency) (profile *Profile, legacy bool, err error) {
	account, fetchErr := RetryTransient(ctx, self.settings.Retry, func() (*Account, error) {
		return self.ledger.FetchAccount(ctx, ProfileAddress(identity), consistency)
	})
	if fetchErr != nil {
		return nil, false, fetchErr
	}
	if account == nil {
		return nil, false, nil
	}
	if !IsCurrentSchema(account) {
		glog.Infof("[views]legacy profile at %s\n", account.Address)
		profile, _ := DecodeProfile(account)
		return profile, true, nil
	}
	profile, err = DecodeProfile(account)
	return profile, false, err
}

// GetProject reads one project by address. Legacy projects stay reachable
// here and report legacy=true so callers render a terminal "unsupported"
// state instead of a blank page.
func (self *ViewSync) GetProject(ctx context.Context, address Address) (project *Project, legacy bool, err error) {
	account, fetchErr := RetryTransient(ctx, self.settings.Retry, func() (*Account, error) {
		return self.ledger.FetchAccount(ctx, address, ConsistencyProcessed)
	})
	if fetchErr != nil {
		return nil, false, fetchErr
	}
	if account == nil {
		return nil, false, nil
	}
	if !IsCurrentSchema(account) {
		project, _ := DecodeProject(account)
		return project, true, nil
	}
	project, err = DecodeProject(account)
	return project, false, err
}

// GetRequest reads one collaboration request by address, with the same
// legacy contract as GetProject.
func (self *ViewSync) GetRequest(ctx context.Context, address Address) (request *CollaborationRequest, legacy bool, err error) {
	account, fetchErr := RetryTransient(ctx, self.settings.Retry, func() (*Account, error) {
		return self.ledger.FetchAccount(ctx, address, ConsistencyProcessed)
	})
	if fetchErr != nil {
		return nil, false, fetchErr
	}
	if account == nil {
		return nil, false, nil
	}
	if !IsCurrentSchema(account) {
		request, _ := DecodeRequest(account)
		return request, true, nil
	}
	request, err = DecodeRequest(account)
	return request, false, err
}

// ListProfiles returns the current-schema directory profiles for the
// browse-people view.
func (self *ViewSync) ListProfiles(ctx context.Context) ([]*Profile, error) {
	accounts, err := RetryTransient(ctx, self.settings.Retry, func() ([]*Account, error) {
		return self.ledger.ListAccounts(ctx, AccountKindProfile, nil)
	})
	if err != nil {
		return nil, err
	}
	return DecodeCurrentProfiles(accounts), nil
}

// ListProjectsBy returns one creator's projects, filtered server side.
func (self *ViewSync) ListProjectsBy(ctx context.Context, creator Identity) ([]*Project, error) {
	accounts, err := RetryTransient(ctx, self.settings.Retry, func() ([]*Account, error) {
		return self.ledger.ListAccounts(ctx, AccountKindProject, []AccountFilter{FilterProjectsBy(creator)})
	})
	if err != nil {
		return nil, err
	}
	return DecodeCurrentProjects(accounts), nil
}

// PreflightSendRequest checks fresh, at confirmed consistency and
// bypassing the cache, whether a live non-rejected request already exists
// at the derived (viewer, project) address. The cache must never gate this
// decision.
func (self *ViewSync) PreflightSendRequest(ctx context.Context, project Address) (existing *CollaborationRequest, err error) {
	address := RequestAddress(self.viewer, project)
	account, err := RetryTransient(ctx, self.settings.Retry, func() (*Account, error) {
		return self.ledger.FetchAccount(ctx, address, ConsistencyConfirmed)
	})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	request, err := DecodeRequest(account)
	if err != nil {
		// an undecodable account still occupies the address
		return nil, NewRejectedError("duplicate_request", fmt.Sprintf("an account already exists at %s", address))
	}
	if request.Status != RequestStatusRejected {
		return request, NewRejectedError("duplicate_request", fmt.Sprintf("a %s request already exists for this project", request.Status))
	}
	return request, nil
}

// mutations. Every mutation goes to the external program, which owns all
// validation; on success the synchronizer re-fetches at confirmed
// consistency so the next snapshot reads its own write.

func (self *ViewSync) submit(ctx context.Context, method string, params any) (TxId, error) {
	return RetryTransient(ctx, self.settings.Retry, func() (TxId, error) {
		return self.ledger.SubmitMutation(ctx, &MutationCall{
			Method: method,
			Signer: self.viewer,
			Params: params,
		})
	})
}

func (self *ViewSync) submitAndRefresh(ctx context.Context, method string, params any) error {
	if _, err := self.submit(ctx, method, params); err != nil {
		return err
	}
	_, err := self.refresh(ctx, ConsistencyConfirmed)
	return err
}

func (self *ViewSync) CreateProfile(ctx context.Context, profile *Profile) error {
	profile.Identity = self.viewer
	return self.submitAndRefresh(ctx, "profile/create", profile)
}

func (self *ViewSync) UpdateProfile(ctx context.Context, profile *Profile) error {
	profile.Identity = self.viewer
	return self.submitAndRefresh(ctx, "profile/update", profile)
}

func (self *ViewSync) DeleteProfile(ctx context.Context) error {
	return self.submitAndRefresh(ctx, "profile/delete", nil)
}

func (self *ViewSync) CreateProject(ctx context.Context, project *Project) (Address, error) {
	project.Creator = self.viewer
	address := ProjectAddress(self.viewer, project.Name)
	if err := self.submitAndRefresh(ctx, "project/create", project); err != nil {
		return Address{}, err
	}
	return address, nil
}

func (self *ViewSync) UpdateProject(ctx context.Context, project *Project) error {
	return self.submitAndRefresh(ctx, "project/update", project)
}

type projectAddressParams struct {
	Project Address `json:"project"`
}

func (self *ViewSync) CloseProject(ctx context.Context, project Address) error {
	return self.submitAndRefresh(ctx, "project/close", &projectAddressParams{Project: project})
}

func (self *ViewSync) ReopenProject(ctx context.Context, project Address) error {
	return self.submitAndRefresh(ctx, "project/reopen", &projectAddressParams{Project: project})
}

func (self *ViewSync) DeleteProject(ctx context.Context, project Address) error {
	return self.submitAndRefresh(ctx, "project/delete", &projectAddressParams{Project: project})
}

type sendRequestParams struct {
	Project Address `json:"project"`
	Message string  `json:"message"`
	Role    string  `json:"role,omitempty"`
}

// SendRequest preflights the derived address, deletes a leftover rejected
// request if one occupies it, and creates the new pending request.
func (self *ViewSync) SendRequest(ctx context.Context, project Address, message string, role string) (Address, error) {
	existing, err := self.PreflightSendRequest(ctx, project)
	if err != nil {
		return Address{}, err
	}
	address := RequestAddress(self.viewer, project)
	if existing != nil {
		// rejected leftover. Delete and resend recreates a pending request
		// at the same derived address.
		if _, err := self.submit(ctx, "request/delete", &requestAddressParams{Request: address}); err != nil {
			return Address{}, err
		}
	}
	err = self.submitAndRefresh(ctx, "request/send", &sendRequestParams{
		Project: project,
		Message: message,
		Role:    role,
	})
	if err != nil {
		return Address{}, err
	}
	return address, nil
}

type requestAddressParams struct {
	Request Address `json:"request"`
}

type updateRequestParams struct {
	Request Address `json:"request"`
	Message string  `json:"message"`
	Role    string  `json:"role,omitempty"`
}

func (self *ViewSync) UpdateRequest(ctx context.Context, request Address, message string, role string) error {
	return self.submitAndRefresh(ctx, "request/update", &updateRequestParams{
		Request: request,
		Message: message,
		Role:    role,
	})
}

func (self *ViewSync) WithdrawRequest(ctx context.Context, request Address) error {
	return self.submitAndRefresh(ctx, "request/withdraw", &requestAddressParams{Request: request})
}

func (self *ViewSync) DeleteRequest(ctx context.Context, request Address) error {
	return self.submitAndRefresh(ctx, "request/delete", &requestAddressParams{Request: request})
}

type replyParams struct {
	Request Address `json:"request"`
	Reply   string  `json:"reply,omitempty"`
}

// AcceptRequest, RejectRequest and MarkUnderReview apply the transition
// optimistically and reconcile against the ledger. See optimistic.go.

func (self *ViewSync) AcceptRequest(ctx context.Context, request Address, reply string) error {
	return self.speculateRequestStatus(ctx, request, RequestStatusAccepted, reply, func(ctx context.Context) (TxId, error) {
		return self.submit(ctx, "request/accept", &replyParams{Request: request, Reply: reply})
	})
}

func (self *ViewSync) RejectRequest(ctx context.Context, request Address, reply string) error {
	return self.speculateRequestStatus(ctx, request, RequestStatusRejected, reply, func(ctx context.Context) (TxId, error) {
		return self.submit(ctx, "request/reject", &replyParams{Request: request, Reply: reply})
	})
}

func (self *ViewSync) MarkUnderReview(ctx context.Context, request Address) error {
	return self.speculateRequestStatus(ctx, request, RequestStatusUnderReview, "", func(ctx context.Context) (TxId, error) {
		return self.submit(ctx, "request/mark-under-review", &requestAddressParams{Request: request})
	})
}
