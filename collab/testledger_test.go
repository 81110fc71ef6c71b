package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/maps"
)

// testLedger is an in-memory ledger that applies the directory program's
// validation rules, so tests exercise the same reject paths the real
// program produces.
type testLedger struct {
	mutex sync.Mutex

	accounts map[Address]*Account
	slot     uint64

	// error injection. Each queued error is returned once before the real
	// behavior resumes.
	listErrs   []error
	fetchErrs  []error
	submitErrs []error

	listCount   int
	fetchCount  int
	submitCount int

	changeCallbacks *CallbackList[func(Address)]
}

func newTestLedger() *testLedger {
	return &testLedger{
		accounts:        map[Address]*Account{},
		changeCallbacks: NewCallbackList[func(Address)](),
	}
}

func (self *testLedger) nextSlot() uint64 {
	self.slot += 1
	return self.slot
}

func (self *testLedger) putAccount(address Address, kind AccountKind, program string, schemaVersion int, data any) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	dataBytes, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	self.accounts[address] = &Account{
		Address:       address,
		Kind:          kind,
		Program:       program,
		SchemaVersion: schemaVersion,
		Slot:          self.nextSlot(),
		Data:          dataBytes,
	}
}

func (self *testLedger) putProfile(profile *Profile) Address {
	address := ProfileAddress(profile.Identity)
	self.putAccount(address, AccountKindProfile, CurrentProgram, CurrentSchemaVersion, profile)
	return address
}

func (self *testLedger) putProject(project *Project) Address {
	address := ProjectAddress(project.Creator, project.Name)
	project.Address = address
	self.putAccount(address, AccountKindProject, CurrentProgram, CurrentSchemaVersion, project)
	return address
}

func (self *testLedger) putRequest(request *CollaborationRequest) Address {
	address := RequestAddress(request.From, request.Project)
	request.Address = address
	self.putAccount(address, AccountKindRequest, CurrentProgram, CurrentSchemaVersion, request)
	return address
}

func (self *testLedger) getRequest(address Address) *CollaborationRequest {
	self.mutex.Lock()
	account := self.accounts[address]
	self.mutex.Unlock()
	if account == nil {
		return nil
	}
	request, err := DecodeRequest(account)
	if err != nil {
		panic(err)
	}
	return request
}

func (self *testLedger) getProject(address Address) *Project {
	self.mutex.Lock()
	account := self.accounts[address]
	self.mutex.Unlock()
	if account == nil {
		return nil
	}
	project, err := DecodeProject(account)
	if err != nil {
		panic(err)
	}
	return project
}

func (self *testLedger) queueListErr(err error)   { self.listErrs = append(self.listErrs, err) }
func (self *testLedger) queueFetchErr(err error)  { self.fetchErrs = append(self.fetchErrs, err) }
func (self *testLedger) queueSubmitErr(err error) { self.submitErrs = append(self.submitErrs, err) }

func (self *testLedger) ListAccounts(ctx context.Context, kind AccountKind, filters []AccountFilter) ([]*Account, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.listCount += 1
	if 0 < len(self.listErrs) {
		err := self.listErrs[0]
		self.listErrs = self.listErrs[1:]
		return nil, err
	}

	accounts := []*Account{}
	for _, account := range self.accounts {
		if account.Kind != kind {
			continue
		}
		if !self.matchesFilters(account, filters) {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// the fake interprets the documented filter offsets against the decoded
// account instead of raw bytes
func (self *testLedger) matchesFilters(account *Account, filters []AccountFilter) bool {
	for _, filter := range filters {
		identity, err := ParseIdentity(fmt.Sprintf("0x%x", filter.Bytes))
		if err != nil {
			return false
		}
		switch account.Kind {
		case AccountKindRequest:
			request, err := DecodeRequest(account)
			if err != nil {
				// undecodable accounts still match, the client must skip them
				continue
			}
			switch filter.Offset {
			case requestFromOffset:
				if request.From != identity {
					return false
				}
			case requestToOffset:
				if request.To != identity {
					return false
				}
			}
		case AccountKindProject:
			project, err := DecodeProject(account)
			if err != nil {
				continue
			}
			if filter.Offset == projectCreatorOffset && project.Creator != identity {
				return false
			}
		}
	}
	return true
}

func (self *testLedger) FetchAccount(ctx context.Context, address Address, consistency Consistency) (*Account, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.fetchCount += 1
	if 0 < len(self.fetchErrs) {
		err := self.fetchErrs[0]
		self.fetchErrs = self.fetchErrs[1:]
		return nil, err
	}

	return self.accounts[address], nil
}

func (self *testLedger) SubscribeAccountChanges(ctx context.Context, kind AccountKind, callback func(Address)) (func(), error) {
	callbackId := self.changeCallbacks.Add(callback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}, nil
}

func (self *testLedger) fireChange(address Address) {
	for _, callback := range self.changeCallbacks.Get() {
		callback(address)
	}
}

func (self *testLedger) SubmitMutation(ctx context.Context, call *MutationCall) (TxId, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.submitCount += 1
	if 0 < len(self.submitErrs) {
		err := self.submitErrs[0]
		self.submitErrs = self.submitErrs[1:]
		return "", err
	}

	if err := self.apply(call); err != nil {
		return "", err
	}
	return TxId(NewId().String()), nil
}

func reencode[T any](params any, out *T) {
	paramsBytes, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(paramsBytes, out); err != nil {
		panic(err)
	}
}

// apply enforces the program's rules: signer checks, derived-address
// uniqueness, and the request status transition table.
func (self *testLedger) apply(call *MutationCall) error {
	switch call.Method {
	case "profile/create":
		var profile Profile
		reencode(call.Params, &profile)
		address := ProfileAddress(call.Signer)
		if _, ok := self.accounts[address]; ok {
			return NewRejectedError("exists", "profile already exists")
		}
		profile.Identity = call.Signer
		profile.CreatedAt = time.Now()
		profile.UpdatedAt = profile.CreatedAt
		self.writeAccount(address, AccountKindProfile, profile)
		return nil
	case "profile/update":
		var profile Profile
		reencode(call.Params, &profile)
		address := ProfileAddress(call.Signer)
		if _, ok := self.accounts[address]; !ok {
			return NewRejectedError("not_found", "no profile")
		}
		profile.Identity = call.Signer
		profile.UpdatedAt = time.Now()
		self.writeAccount(address, AccountKindProfile, profile)
		return nil
	case "profile/delete":
		delete(self.accounts, ProfileAddress(call.Signer))
		return nil
	case "project/create":
		var project Project
		reencode(call.Params, &project)
		if _, ok := self.accounts[ProfileAddress(call.Signer)]; !ok {
			return NewRejectedError("no_profile", "create a profile first")
		}
		project.Creator = call.Signer
		address := ProjectAddress(call.Signer, project.Name)
		if _, ok := self.accounts[address]; ok {
			return NewRejectedError("exists", "project already exists")
		}
		project.Address = address
		if project.Status == "" {
			project.Status = ProjectStatusActive
		}
		project.CreatedAt = time.Now()
		project.UpdatedAt = project.CreatedAt
		self.writeAccount(address, AccountKindProject, project)
		return nil
	case "project/update":
		var project Project
		reencode(call.Params, &project)
		existing := self.accounts[project.Address]
		if existing == nil {
			return NewRejectedError("not_found", "no project")
		}
		current, err := DecodeProject(existing)
		if err != nil || current.Creator != call.Signer {
			return NewRejectedError("wrong_signer", "only the creator can update")
		}
		project.Creator = current.Creator
		project.UpdatedAt = time.Now()
		self.writeAccount(project.Address, AccountKindProject, project)
		return nil
	case "project/close", "project/reopen", "project/delete":
		var params projectAddressParams
		reencode(call.Params, &params)
		existing := self.accounts[params.Project]
		if existing == nil {
			return NewRejectedError("not_found", "no project")
		}
		project, err := DecodeProject(existing)
		if err != nil || project.Creator != call.Signer {
			return NewRejectedError("wrong_signer", "only the creator can do that")
		}
		switch call.Method {
		case "project/close":
			project.OpenToCollab = false
		case "project/reopen":
			project.OpenToCollab = true
		case "project/delete":
			delete(self.accounts, params.Project)
			return nil
		}
		project.UpdatedAt = time.Now()
		self.writeAccount(params.Project, AccountKindProject, project)
		return nil
	case "request/send":
		var params sendRequestParams
		reencode(call.Params, &params)
		projectAccount := self.accounts[params.Project]
		if projectAccount == nil {
			return NewRejectedError("not_found", "no project")
		}
		project, err := DecodeProject(projectAccount)
		if err != nil {
			return NewRejectedError("legacy", "unsupported project")
		}
		if !project.OpenToCollab {
			return NewRejectedError("closed", "project is not accepting collaborations")
		}
		address := RequestAddress(call.Signer, params.Project)
		if _, ok := self.accounts[address]; ok {
			return NewRejectedError("exists", "request already exists at derived address")
		}
		request := &CollaborationRequest{
			Address:   address,
			From:      call.Signer,
			To:        project.Creator,
			Project:   params.Project,
			Message:   params.Message,
			Role:      params.Role,
			Status:    RequestStatusPending,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		self.writeAccount(address, AccountKindRequest, request)
		return nil
	case "request/update":
		var params updateRequestParams
		reencode(call.Params, &params)
		request := self.mustRequest(params.Request)
		if request == nil || request.From != call.Signer {
			return NewRejectedError("wrong_signer", "only the sender can update")
		}
		if request.Status != RequestStatusPending {
			return NewRejectedError("invalid_transition", "request is no longer pending")
		}
		request.Message = params.Message
		request.Role = params.Role
		request.UpdatedAt = time.Now()
		self.writeAccount(params.Request, AccountKindRequest, request)
		return nil
	case "request/withdraw":
		var params requestAddressParams
		reencode(call.Params, &params)
		request := self.mustRequest(params.Request)
		if request == nil || request.From != call.Signer {
			return NewRejectedError("wrong_signer", "only the sender can withdraw")
		}
		if request.Status != RequestStatusPending {
			return NewRejectedError("invalid_transition", "request is no longer pending")
		}
		delete(self.accounts, params.Request)
		return nil
	case "request/delete":
		var params requestAddressParams
		reencode(call.Params, &params)
		request := self.mustRequest(params.Request)
		if request == nil {
			return NewRejectedError("not_found", "no request")
		}
		senderDelete := request.From == call.Signer && request.Status == RequestStatusRejected
		recipientDelete := request.To == call.Signer && request.Status.IsTerminal()
		if !senderDelete && !recipientDelete {
			return NewRejectedError("wrong_signer", "not deletable by this signer in this state")
		}
		delete(self.accounts, params.Request)
		return nil
	case "request/accept", "request/reject", "request/mark-under-review":
		var params replyParams
		reencode(call.Params, &params)
		request := self.mustRequest(params.Request)
		if request == nil {
			return NewRejectedError("not_found", "no request")
		}
		if request.To != call.Signer {
			return NewRejectedError("wrong_signer", "only the recipient can decide")
		}
		var next RequestStatus
		switch call.Method {
		case "request/accept":
			next = RequestStatusAccepted
		case "request/reject":
			next = RequestStatusRejected
		case "request/mark-under-review":
			next = RequestStatusUnderReview
		}
		if !request.Status.CanTransitionTo(next) {
			return NewRejectedError("invalid_transition", fmt.Sprintf("%s -> %s", request.Status, next))
		}
		request.Status = next
		if params.Reply != "" {
			request.Reply = params.Reply
		}
		request.UpdatedAt = time.Now()
		self.writeAccount(params.Request, AccountKindRequest, request)
		if next == RequestStatusAccepted {
			self.incrementRoleSeat(request.Project, request.Role)
		}
		return nil
	default:
		return NewRejectedError("unknown_method", call.Method)
	}
}

func (self *testLedger) mustRequest(address Address) *CollaborationRequest {
	account := self.accounts[address]
	if account == nil {
		return nil
	}
	request, err := DecodeRequest(account)
	if err != nil {
		return nil
	}
	return request
}

func (self *testLedger) writeAccount(address Address, kind AccountKind, data any) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	self.accounts[address] = &Account{
		Address:       address,
		Kind:          kind,
		Program:       CurrentProgram,
		SchemaVersion: CurrentSchemaVersion,
		Slot:          self.nextSlot(),
		Data:          dataBytes,
	}
}

func (self *testLedger) incrementRoleSeat(projectAddress Address, role string) {
	account := self.accounts[projectAddress]
	if account == nil {
		return
	}
	project, err := DecodeProject(account)
	if err != nil {
		return
	}
	for i := 0; i < len(project.Roles); i += 1 {
		if project.Roles[i].Role == role {
			project.Roles[i].Accepted += 1
			break
		}
	}
	self.writeAccount(projectAddress, AccountKindProject, project)
}

func (self *testLedger) addresses() []Address {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return maps.Keys(self.accounts)
}
