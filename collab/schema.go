package collab

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// the directory program has shipped two account layouts under the same kind
// tags. Accounts carry an explicit schema version discriminant surfaced by
// the rpc gateway, and every decode goes through one adapter per version.
// IsCurrentSchema is the single predicate that decides whether an entity
// appears in user-facing listings. Legacy entities stay reachable by direct
// address and render as a terminal "legacy, unsupported" state.

const CurrentProgram = "opencollab-directory"
const CurrentSchemaVersion = 2

// Account is the envelope the rpc gateway returns for any stored account.
// Slot is the ledger sequence at which this view of the account was read.
type Account struct {
	Address       Address         `json:"address"`
	Kind          AccountKind     `json:"kind"`
	Program       string          `json:"program"`
	SchemaVersion int             `json:"schema_version"`
	Slot          uint64          `json:"slot"`
	Data          json.RawMessage `json:"data"`
}

func IsCurrentSchema(account *Account) bool {
	return account.Program == CurrentProgram && account.SchemaVersion == CurrentSchemaVersion
}

// v1 layouts. The original program used camelCase field names and fewer
// fields. Kept only so that direct fetches of legacy accounts can render
// something better than a blank page.

type profileV1 struct {
	Identity  Identity `json:"identity"`
	Username  string   `json:"username"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Bio       string   `json:"bio"`
	GithubUrl string   `json:"githubUrl"`
	CreatedMs int64    `json:"createdAt"`
}

type projectV1 struct {
	Creator     Identity `json:"creator"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TechStack   []string `json:"techStack"`
	Accepting   bool     `json:"accepting"`
	CreatedMs   int64    `json:"createdAt"`
}

type requestV1 struct {
	From      Identity      `json:"from"`
	To        Identity      `json:"to"`
	Project   Address       `json:"project"`
	Message   string        `json:"message"`
	Status    RequestStatus `json:"status"`
	CreatedMs int64         `json:"createdAt"`
}

func DecodeProfile(account *Account) (*Profile, error) {
	if account.Kind != AccountKindProfile {
		return nil, NewDecodeError(account.Address, account.SchemaVersion, fmt.Errorf("kind %s is not %s", account.Kind, AccountKindProfile))
	}
	switch account.SchemaVersion {
	case 1:
		var v1 profileV1
		if err := json.Unmarshal(account.Data, &v1); err != nil {
			return nil, NewDecodeError(account.Address, account.SchemaVersion, err)
		}
		return &Profile{
			Identity:    v1.Identity,
			Username:    v1.Username,
			DisplayName: v1.Name,
			Role:        v1.Role,
			Bio:         v1.Bio,
			Github:      v1.GithubUrl,
			CreatedAt:   time.UnixMilli(v1.CreatedMs),
			UpdatedAt:   time.UnixMilli(v1.CreatedMs),
		}, nil
	case CurrentSchemaVersion:
		var profile Profile
		if err := json.Unmarshal(account.Data, &profile); err != nil {
			return nil, NewDecodeError(account.Address, account.SchemaVersion, err)
		}
		return &profile, nil
	default:
		return nil, NewDecodeError(account.Address, account.SchemaVersion, fmt.Errorf("unknown schema version"))
	}
}

func DecodeProject(account *Account) (*Project, error) {
	if account.Kind != AccountKindProject {
		return nil, NewDecodeError(account.Address, account.SchemaVersion, fmt.Errorf("kind %s is not %s", account.Kind, AccountKindProject))
	}
	switch account.SchemaVersion {
	case 1:
		var v1 projectV1
		if err := json.Unmarshal(account.Data, &v1); err != nil {
			return nil, NewDecodeError(account.Address, account.SchemaVersion, err)
		}
		return &Project{
			Address:      account.Address,
			Creator:      v1.Creator,
			Name:         v1.Name,
			Description:  v1.Description,
			TechStack:    v1.TechStack,
			Status:       ProjectStatusActive,
			OpenToCollab: v1.Accepting,
			CreatedAt:    time.UnixMilli(v1.CreatedMs),
			UpdatedAt:    time.UnixMilli(v1.CreatedMs),
		}, nil
	case CurrentSchemaVersion:
		var project Project
		if err := json.Unmarshal(account.Data, &project); err != nil {
			return nil, NewDecodeError(account.Address, account.SchemaVersion, err)
		}
		project.Address = account.Address
		return &project, nil
	default:
		return nil, NewDecodeError(account.Address, account.SchemaVersion, fmt.Errorf("unknown schema version"))
	}
}

func DecodeRequest(account *Account) (*CollaborationRequest, error) {
	if account.Kind != AccountKindRequest {
		return nil, NewDecodeError(account.Address, account.SchemaVersion, fmt.Errorf("kind %s is not %s", account.Kind, AccountKindRequest))
	}
	switch account.SchemaVersion {
	case 1:
		var v1 requestV1
		if err := json.Unmarshal(account.Data, &v1); err != nil {
			return nil, NewDecodeError(account.Address, account.SchemaVersion, err)
		}
		return &CollaborationRequest{
			Address:   account.Address,
			From:      v1.From,
			To:        v1.To,
			Project:   v1.Project,
			Message:   v1.Message,
			Status:    v1.Status,
			CreatedAt: time.UnixMilli(v1.CreatedMs),
			UpdatedAt: time.UnixMilli(v1.CreatedMs),
		}, nil
	case CurrentSchemaVersion:
		var request CollaborationRequest
		if err := json.Unmarshal(account.Data, &request); err != nil {
			return nil, NewDecodeError(account.Address, account.SchemaVersion, err)
		}
		request.Address = account.Address
		return &request, nil
	default:
		return nil, NewDecodeError(account.Address, account.SchemaVersion, fmt.Errorf("unknown schema version"))
	}
}

// decodeCurrent filters a listing down to current-schema accounts and
// decodes each one, skipping any single corrupt account instead of
// aborting the batch. The remote store can contain accounts from a prior
// incompatible layout under the same kind tag.
func decodeCurrent[T any](accounts []*Account, decode func(*Account) (T, error)) []T {
	decoded := []T{}
	for _, account := range accounts {
		if !IsCurrentSchema(account) {
			glog.V(2).Infof("[schema]skip legacy %s (program=%s v%d)\n", account.Address, account.Program, account.SchemaVersion)
			continue
		}
		value, err := decode(account)
		if err != nil {
			glog.Infof("[schema]skip undecodable %s = %s\n", account.Address, err)
			continue
		}
		decoded = append(decoded, value)
	}
	return decoded
}

func DecodeCurrentProfiles(accounts []*Account) []*Profile {
	return decodeCurrent(accounts, DecodeProfile)
}

func DecodeCurrentProjects(accounts []*Account) []*Project {
	return decodeCurrent(accounts, DecodeProject)
}

func DecodeCurrentRequests(accounts []*Account) []*CollaborationRequest {
	return decodeCurrent(accounts, DecodeRequest)
}
