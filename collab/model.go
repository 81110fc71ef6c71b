package collab

import (
	"time"
)

// account kinds stored by the external program
type AccountKind string

const (
	AccountKindProfile AccountKind = "user"
	AccountKindProject AccountKind = "project"
	AccountKindRequest AccountKind = "collab_request"
)

// Profile is the directory entry for one identity.
// At most one profile per identity, enforced externally by address derivation.
type Profile struct {
	Identity    Identity  `json:"identity"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Bio         string    `json:"bio"`
	Contact     string    `json:"contact"`
	Github      string    `json:"github"`
	Links       []string  `json:"links,omitempty"`
	MetadataCid string    `json:"metadata_cid,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusPaused    ProjectStatus = "paused"
	ProjectStatusCompleted ProjectStatus = "completed"
)

type RoleRequirement struct {
	Role     string `json:"role"`
	Needed   int    `json:"needed"`
	Accepted int    `json:"accepted"`
	Label    string `json:"label,omitempty"`
}

func (self *RoleRequirement) HasOpenSeats() bool {
	return self.Accepted < self.Needed
}

type Project struct {
	Address            Address           `json:"address"`
	Creator            Identity          `json:"creator"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	TechStack          []string          `json:"tech_stack,omitempty"`
	NeededSkills       []string          `json:"needed_skills,omitempty"`
	CollaborationLevel string            `json:"collaboration_level,omitempty"`
	Status             ProjectStatus     `json:"status"`
	OpenToCollab       bool              `json:"open_to_collab"`
	Roles              []RoleRequirement `json:"roles,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// OpenRoles returns the roles that still have remaining seats.
func (self *Project) OpenRoles() []string {
	openRoles := []string{}
	for i := 0; i < len(self.Roles); i += 1 {
		if self.Roles[i].HasOpenSeats() {
			openRoles = append(openRoles, self.Roles[i].Role)
		}
	}
	return openRoles
}

// request status state machine is:
// RequestStatusPending
//
//	-> RequestStatusUnderReview
//	  -> RequestStatusAccepted (terminal)
//	  -> RequestStatusRejected (terminal)
//	-> RequestStatusAccepted (terminal)
//	-> RequestStatusRejected (terminal)
//	-> withdrawn by sender (removes the account)
//
// the recipient may delete a terminal record. The sender may delete a
// rejected record and resend, recreating a pending request at the same
// derived address.
type RequestStatus string

const (
	RequestStatusPending     RequestStatus = "pending"
	RequestStatusUnderReview RequestStatus = "under_review"
	RequestStatusAccepted    RequestStatus = "accepted"
	RequestStatusRejected    RequestStatus = "rejected"
)

func (self RequestStatus) IsTerminal() bool {
	switch self {
	case RequestStatusAccepted, RequestStatusRejected:
		return true
	default:
		return false
	}
}

func (self RequestStatus) CanTransitionTo(next RequestStatus) bool {
	switch self {
	case RequestStatusPending:
		switch next {
		case RequestStatusUnderReview, RequestStatusAccepted, RequestStatusRejected:
			return true
		}
	case RequestStatusUnderReview:
		switch next {
		case RequestStatusAccepted, RequestStatusRejected:
			return true
		}
	}
	return false
}

type CollaborationRequest struct {
	Address   Address       `json:"address"`
	From      Identity      `json:"from"`
	To        Identity      `json:"to"`
	Project   Address       `json:"project"`
	Message   string        `json:"message"`
	Role      string        `json:"role,omitempty"`
	Status    RequestStatus `json:"status"`
	Reply     string        `json:"reply,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type RequestAction string

const (
	RequestActionAccept     RequestAction = "accept"
	RequestActionReject     RequestAction = "reject"
	RequestActionMarkReview RequestAction = "mark_under_review"
	RequestActionWithdraw   RequestAction = "withdraw"
	RequestActionDelete     RequestAction = "delete"
	RequestActionResend     RequestAction = "resend"
)

// ActionsFor pre-filters the action set offered to the viewer.
// This is a UI convenience only. The external program re-validates every
// mutation, and a rejected mutation is always surfaced as an error.
func (self *CollaborationRequest) ActionsFor(viewer Identity) []RequestAction {
	actions := []RequestAction{}
	if viewer == self.To {
		switch self.Status {
		case RequestStatusPending:
			actions = append(actions, RequestActionAccept, RequestActionReject, RequestActionMarkReview)
		case RequestStatusUnderReview:
			actions = append(actions, RequestActionAccept, RequestActionReject)
		case RequestStatusAccepted, RequestStatusRejected:
			actions = append(actions, RequestActionDelete)
		}
	}
	if viewer == self.From {
		switch self.Status {
		case RequestStatusPending:
			actions = append(actions, RequestActionWithdraw)
		case RequestStatusRejected:
			actions = append(actions, RequestActionDelete, RequestActionResend)
		}
	}
	return actions
}
