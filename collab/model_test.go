package collab

import (
	"context"
	mathrand "math/rand"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestRequestStatusTransitions(t *testing.T) {
	// the full transition table
	assert.Equal(t, true, RequestStatusPending.CanTransitionTo(RequestStatusUnderReview))
	assert.Equal(t, true, RequestStatusPending.CanTransitionTo(RequestStatusAccepted))
	assert.Equal(t, true, RequestStatusPending.CanTransitionTo(RequestStatusRejected))
	assert.Equal(t, true, RequestStatusUnderReview.CanTransitionTo(RequestStatusAccepted))
	assert.Equal(t, true, RequestStatusUnderReview.CanTransitionTo(RequestStatusRejected))

	assert.Equal(t, false, RequestStatusUnderReview.CanTransitionTo(RequestStatusPending))
	assert.Equal(t, false, RequestStatusAccepted.CanTransitionTo(RequestStatusPending))
	assert.Equal(t, false, RequestStatusAccepted.CanTransitionTo(RequestStatusRejected))
	assert.Equal(t, false, RequestStatusRejected.CanTransitionTo(RequestStatusAccepted))
	assert.Equal(t, false, RequestStatusRejected.CanTransitionTo(RequestStatusUnderReview))

	assert.Equal(t, false, RequestStatusPending.IsTerminal())
	assert.Equal(t, false, RequestStatusUnderReview.IsTerminal())
	assert.Equal(t, true, RequestStatusAccepted.IsTerminal())
	assert.Equal(t, true, RequestStatusRejected.IsTerminal())
}

func TestRequestActionsFor(t *testing.T) {
	sender := testIdentity(1)
	recipient := testIdentity(2)
	other := testIdentity(3)

	request := &CollaborationRequest{
		From:   sender,
		To:     recipient,
		Status: RequestStatusPending,
	}

	assert.Equal(t,
		[]RequestAction{RequestActionAccept, RequestActionReject, RequestActionMarkReview},
		request.ActionsFor(recipient),
	)
	assert.Equal(t, []RequestAction{RequestActionWithdraw}, request.ActionsFor(sender))
	assert.Equal(t, []RequestAction{}, request.ActionsFor(other))

	request.Status = RequestStatusUnderReview
	assert.Equal(t, []RequestAction{RequestActionAccept, RequestActionReject}, request.ActionsFor(recipient))
	assert.Equal(t, []RequestAction{}, request.ActionsFor(sender))

	request.Status = RequestStatusAccepted
	assert.Equal(t, []RequestAction{RequestActionDelete}, request.ActionsFor(recipient))
	assert.Equal(t, []RequestAction{}, request.ActionsFor(sender))

	request.Status = RequestStatusRejected
	assert.Equal(t, []RequestAction{RequestActionDelete}, request.ActionsFor(recipient))
	assert.Equal(t, []RequestAction{RequestActionDelete, RequestActionResend}, request.ActionsFor(sender))
}

// drive random action sequences against the program rules and verify the
// observed status never takes an illegal transition
func TestRequestStateMachineRandomSequences(t *testing.T) {
	ctx := context.Background()
	random := mathrand.New(mathrand.NewSource(42))

	methods := []string{
		"request/accept",
		"request/reject",
		"request/mark-under-review",
		"request/withdraw",
		"request/delete",
	}

	for trial := 0; trial < 200; trial += 1 {
		ledger := newTestLedger()
		sender := testIdentity(1)
		owner := testIdentity(2)

		ledger.putProfile(&Profile{Identity: owner, Username: "owner"})
		ledger.putProfile(&Profile{Identity: sender, Username: "sender"})
		project := ledger.putProject(&Project{
			Creator:      owner,
			Name:         "aurora",
			Status:       ProjectStatusActive,
			OpenToCollab: true,
		})

		address := RequestAddress(sender, project)
		_, err := ledger.SubmitMutation(ctx, &MutationCall{
			Method: "request/send",
			Signer: sender,
			Params: &sendRequestParams{Project: project, Message: "hi"},
		})
		assert.Equal(t, err, nil)

		lastStatus := RequestStatusPending
		for step := 0; step < 12; step += 1 {
			method := methods[random.Intn(len(methods))]
			var signer Identity
			var params any
			switch method {
			case "request/withdraw":
				signer = sender
				params = &requestAddressParams{Request: address}
			case "request/delete":
				if random.Intn(2) == 0 {
					signer = sender
				} else {
					signer = owner
				}
				params = &requestAddressParams{Request: address}
			default:
				signer = owner
				params = &replyParams{Request: address}
			}

			_, err := ledger.SubmitMutation(ctx, &MutationCall{
				Method: method,
				Signer: signer,
				Params: params,
			})

			request := ledger.getRequest(address)
			if request == nil {
				// withdrawn or deleted. The sender can recreate a pending
				// request at the same derived address.
				_, sendErr := ledger.SubmitMutation(ctx, &MutationCall{
					Method: "request/send",
					Signer: sender,
					Params: &sendRequestParams{Project: project, Message: "again"},
				})
				assert.Equal(t, sendErr, nil)
				lastStatus = RequestStatusPending
				continue
			}

			if err != nil {
				// a rejected mutation never moves the status
				assert.Equal(t, true, IsRejected(err))
				assert.Equal(t, lastStatus, request.Status)
				continue
			}

			if request.Status != lastStatus {
				assert.Equal(t, true, lastStatus.CanTransitionTo(request.Status))
			}
			lastStatus = request.Status
		}
	}
}

func TestProjectOpenRoles(t *testing.T) {
	project := &Project{
		Roles: []RoleRequirement{
			{Role: "frontend", Needed: 2, Accepted: 2},
			{Role: "backend", Needed: 1, Accepted: 0},
		},
	}
	assert.Equal(t, []string{"backend"}, project.OpenRoles())
}
