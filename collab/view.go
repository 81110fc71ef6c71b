package collab

import (
	"time"

	"golang.org/x/exp/slices"
)

// derived view models. These are pure functions of the account set and the
// viewer identity, so that the same inputs always classify the same way
// regardless of poll timing or retry count.

type RequestPartition struct {
	Received map[RequestStatus][]*CollaborationRequest
	Sent     map[RequestStatus][]*CollaborationRequest
}

func NewRequestPartition() *RequestPartition {
	return &RequestPartition{
		Received: map[RequestStatus][]*CollaborationRequest{},
		Sent:     map[RequestStatus][]*CollaborationRequest{},
	}
}

// PartitionRequests classifies requests by viewer identity and status.
// Requests are ordered newest first within each bucket.
func PartitionRequests(viewer Identity, requests []*CollaborationRequest) *RequestPartition {
	partition := NewRequestPartition()
	for _, request := range requests {
		if request.To == viewer {
			partition.Received[request.Status] = append(partition.Received[request.Status], request)
		}
		if request.From == viewer {
			partition.Sent[request.Status] = append(partition.Sent[request.Status], request)
		}
	}
	newestFirst := func(a *CollaborationRequest, b *CollaborationRequest) int {
		if b.CreatedAt.Before(a.CreatedAt) {
			return -1
		} else if a.CreatedAt.Before(b.CreatedAt) {
			return 1
		} else {
			return 0
		}
	}
	for _, requests := range partition.Received {
		slices.SortStableFunc(requests, newestFirst)
	}
	for _, requests := range partition.Sent {
		slices.SortStableFunc(requests, newestFirst)
	}
	return partition
}

func (self *RequestPartition) AllReceived() []*CollaborationRequest {
	all := []*CollaborationRequest{}
	for _, status := range allStatuses {
		all = append(all, self.Received[status]...)
	}
	return all
}

func (self *RequestPartition) AllSent() []*CollaborationRequest {
	all := []*CollaborationRequest{}
	for _, status := range allStatuses {
		all = append(all, self.Sent[status]...)
	}
	return all
}

func (self *RequestPartition) Find(address Address) *CollaborationRequest {
	for _, requests := range self.Received {
		for _, request := range requests {
			if request.Address == address {
				return request
			}
		}
	}
	for _, requests := range self.Sent {
		for _, request := range requests {
			if request.Address == address {
				return request
			}
		}
	}
	return nil
}

var allStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusUnderReview,
	RequestStatusAccepted,
	RequestStatusRejected,
}

// BadgeCounts drives the pending-count badge:
// received requests still pending, plus sent requests whose status has
// moved away from pending since last acknowledged.
type BadgeCounts struct {
	PendingReceived int
	UnreadResponses int
}

func (self BadgeCounts) Total() int {
	return self.PendingReceived + self.UnreadResponses
}

// DeriveBadges computes badge counts. `acknowledged` is the viewer's
// client-local read-marker map from request address to the last
// acknowledged status.
func DeriveBadges(partition *RequestPartition, acknowledged map[Address]RequestStatus) BadgeCounts {
	badges := BadgeCounts{
		PendingReceived: len(partition.Received[RequestStatusPending]),
	}
	for _, request := range partition.AllSent() {
		if request.Status == RequestStatusPending {
			continue
		}
		if acknowledged[request.Address] != request.Status {
			badges.UnreadResponses += 1
		}
	}
	return badges
}

// DashboardStats is the per-viewer rollup.
type DashboardStats struct {
	ProjectsCreated      int
	PendingReviews       int
	ActiveCollaborations int
	ApplicationsSent     int
}

func DeriveStats(viewer Identity, projects []*Project, partition *RequestPartition) DashboardStats {
	stats := DashboardStats{
		PendingReviews:       len(partition.Received[RequestStatusPending]) + len(partition.Received[RequestStatusUnderReview]),
		ActiveCollaborations: len(partition.Sent[RequestStatusAccepted]),
		ApplicationsSent:     len(partition.AllSent()),
	}
	for _, project := range projects {
		if project.Creator == viewer {
			stats.ProjectsCreated += 1
		}
	}
	return stats
}

// ProjectFlags are the per-viewer eligibility flags for one project listing.
type ProjectFlags struct {
	IsOwner          bool
	CanRequestCollab bool
	OpenRoles        []string
}

// ProjectFlagsFor computes eligibility. The viewer can request
// collaboration when they do not own the project, the project is accepting
// collaborations, no live non-rejected request from the viewer exists for
// it, and, if the project defines role requirements, at least one role has
// remaining seats.
func ProjectFlagsFor(viewer Identity, project *Project, sentByViewer []*CollaborationRequest) ProjectFlags {
	flags := ProjectFlags{
		IsOwner:   project.Creator == viewer,
		OpenRoles: project.OpenRoles(),
	}

	if flags.IsOwner {
		return flags
	}
	if !project.OpenToCollab || project.Status != ProjectStatusActive {
		return flags
	}
	for _, request := range sentByViewer {
		if request.Project == project.Address && request.Status != RequestStatusRejected {
			return flags
		}
	}
	if 0 < len(project.Roles) && len(flags.OpenRoles) == 0 {
		return flags
	}

	flags.CanRequestCollab = true
	return flags
}

// Snapshot is one consistent derived view of the viewer's world.
// A nil Profile means the viewer has not created a directory profile yet,
// which is a valid branch ("create your profile"), not an error.
type Snapshot struct {
	FetchTime time.Time
	Viewer    Identity

	Profile *Profile
	// the viewer's derived profile address is occupied by a prior-layout
	// account. Render a terminal "unsupported" state, never the create
	// prompt.
	ProfileLegacy bool

	Projects []*Project
	Requests *RequestPartition

	Badges BadgeCounts
	Stats  DashboardStats

	// a speculative snapshot reflects an optimistic local transition that
	// has not been confirmed by the ledger yet
	Speculative bool
	// a stale snapshot was painted from the ttl cache while a fresh fetch
	// resolves
	Stale bool
}

// Clone deep-copies the request partition so a speculative transition
// never mutates the confirmed view.
func (self *Snapshot) Clone() *Snapshot {
	next := &Snapshot{
		FetchTime:     self.FetchTime,
		Viewer:        self.Viewer,
		Profile:       self.Profile,
		ProfileLegacy: self.ProfileLegacy,
		Projects:      slices.Clone(self.Projects),
		Requests:      NewRequestPartition(),
		Badges:        self.Badges,
		Stats:         self.Stats,
		Speculative:   self.Speculative,
		Stale:         self.Stale,
	}
	for status, requests := range self.Requests.Received {
		for _, request := range requests {
			requestCopy := *request
			next.Requests.Received[status] = append(next.Requests.Received[status], &requestCopy)
		}
	}
	for status, requests := range self.Requests.Sent {
		for _, request := range requests {
			requestCopy := *request
			next.Requests.Sent[status] = append(next.Requests.Sent[status], &requestCopy)
		}
	}
	return next
}

// FlagsFor computes the viewer's eligibility flags for a project in this
// snapshot.
func (self *Snapshot) FlagsFor(project *Project) ProjectFlags {
	return ProjectFlagsFor(self.Viewer, project, self.Requests.AllSent())
}
