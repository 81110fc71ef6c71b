package collab

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
)

// optimistic update + reconciliation:
// apply the speculative transition locally for responsiveness, submit the
// mutation, then re-fetch at confirmed consistency to reconcile. On any
// failure the speculative state is rolled back by re-fetching at the prior
// consistency level. A speculative snapshot is never final until
// reconciliation completes.

func (self *ViewSync) speculateRequestStatus(ctx context.Context, address Address, next RequestStatus, reply string, submit func(context.Context) (TxId, error)) error {
	snapshot := self.Snapshot()
	if snapshot != nil {
		if request := snapshot.Requests.Find(address); request != nil {
			if !request.Status.CanTransitionTo(next) {
				// pre-filter only. The program re-validates every mutation.
				return NewRejectedError("invalid_transition", fmt.Sprintf("cannot move a %s request to %s", request.Status, next))
			}
			speculative := self.applySpeculative(snapshot, address, next, reply)
			self.publish(speculative, speculative.FetchTime)
		}
	}

	_, submitErr := submit(ctx)
	if submitErr != nil {
		// roll back by re-fetching at the looser tier. A canceled signing
		// is a no-op, not a failure, but it still needs the rollback.
		if _, err := self.refresh(ctx, ConsistencyProcessed); err != nil {
			glog.Infof("[views]rollback refresh error = %s\n", err)
		}
		return submitErr
	}

	// reconcile: read our own write
	if _, err := self.refresh(ctx, ConsistencyConfirmed); err != nil {
		return err
	}
	return nil
}

// applySpeculative re-derives the whole snapshot with one request moved to
// the speculative status, so buckets, badges and stats stay consistent
// with each other.
func (self *ViewSync) applySpeculative(snapshot *Snapshot, address Address, next RequestStatus, reply string) *Snapshot {
	clone := snapshot.Clone()

	requestsByAddress := map[Address]*CollaborationRequest{}
	for _, request := range clone.Requests.AllReceived() {
		requestsByAddress[request.Address] = request
	}
	for _, request := range clone.Requests.AllSent() {
		requestsByAddress[request.Address] = request
	}
	if request, ok := requestsByAddress[address]; ok {
		request.Status = next
		if reply != "" {
			request.Reply = reply
		}
	}

	speculative := self.derive(maps.Values(requestsByAddress), clone.Projects, clone.Profile, clone.ProfileLegacy, clone.FetchTime)
	speculative.Speculative = true
	return speculative
}
