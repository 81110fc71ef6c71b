package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// read recency tiers offered by the ledger gateway.
// callers choose based on whether they need read-your-writes consistency
// after a just-submitted mutation.
type Consistency string

const (
	// fast, possibly stale
	ConsistencyProcessed Consistency = "processed"
	// confirmed durable; use after submitting a mutation
	ConsistencyConfirmed Consistency = "confirmed"
)

// AccountFilter is a server-side byte-offset predicate, used to avoid
// transferring irrelevant accounts.
type AccountFilter struct {
	Offset int    `json:"offset"`
	Bytes  []byte `json:"bytes"`
}

// account layouts place the participant identities at fixed offsets after
// the 8 byte kind tag
const (
	requestFromOffset    = 8
	requestToOffset      = 40
	projectCreatorOffset = 8
)

func FilterRequestsFrom(sender Identity) AccountFilter {
	return AccountFilter{
		Offset: requestFromOffset,
		Bytes:  sender.Bytes(),
	}
}

func FilterRequestsTo(recipient Identity) AccountFilter {
	return AccountFilter{
		Offset: requestToOffset,
		Bytes:  recipient.Bytes(),
	}
}

func FilterProjectsBy(creator Identity) AccountFilter {
	return AccountFilter{
		Offset: projectCreatorOffset,
		Bytes:  creator.Bytes(),
	}
}

type TxId string

// MutationCall is a state-changing call against the external program,
// signed by the viewer's identity at the gateway.
type MutationCall struct {
	Method string   `json:"method"`
	Signer Identity `json:"signer"`
	Params any      `json:"params,omitempty"`
}

// LedgerClient is the boundary the synchronizer consumes. The external
// program and its rpc gateway own the authoritative account shapes and all
// validation; this client only reads and submits.
type LedgerClient interface {
	// ListAccounts returns all currently stored accounts of a kind,
	// optionally server-side filtered
	ListAccounts(ctx context.Context, kind AccountKind, filters []AccountFilter) ([]*Account, error)
	// FetchAccount returns nil when no account exists at the address.
	// Absence is a valid outcome, not an error.
	FetchAccount(ctx context.Context, address Address, consistency Consistency) (*Account, error)
	// SubmitMutation signs and submits a state-changing call
	SubmitMutation(ctx context.Context, call *MutationCall) (TxId, error)
	// SubscribeAccountChanges invokes the callback with the address of any
	// changed account of the kind, until the returned unsub is called
	SubscribeAccountChanges(ctx context.Context, kind AccountKind, callback func(Address)) (func(), error)
}

const defaultHttpTimeout = 30 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

func DefaultGatewayClientSettings() *GatewayClientSettings {
	return &GatewayClientSettings{
		ReconnectTimeout: 5 * time.Second,
		AuthTimeout:      10 * time.Second,
		PingTimeout:      30 * time.Second,
	}
}

type GatewayClientSettings struct {
	ReconnectTimeout time.Duration
	AuthTimeout      time.Duration
	PingTimeout      time.Duration
}

// GatewayClient talks to the directory rpc gateway over http json, and to
// its change feed over websocket.
type GatewayClient struct {
	ctx    context.Context
	cancel context.CancelFunc

	gatewayUrl   string
	subscribeUrl string

	settings *GatewayClientSettings

	httpClient *http.Client

	sessionToken string
}

func NewGatewayClientWithDefaults(ctx context.Context, gatewayUrl string, subscribeUrl string) *GatewayClient {
	return NewGatewayClient(ctx, gatewayUrl, subscribeUrl, DefaultGatewayClientSettings())
}

func NewGatewayClient(ctx context.Context, gatewayUrl string, subscribeUrl string, settings *GatewayClientSettings) *GatewayClient {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &GatewayClient{
		ctx:          cancelCtx,
		cancel:       cancel,
		gatewayUrl:   gatewayUrl,
		subscribeUrl: subscribeUrl,
		settings:     settings,
		httpClient:   defaultClient(),
	}
}

// this gets attached to gateway calls that need it
func (self *GatewayClient) SetSessionToken(sessionToken string) {
	self.sessionToken = sessionToken
}

func (self *GatewayClient) Close() {
	self.cancel()
}

type listAccountsArgs struct {
	Kind    AccountKind     `json:"kind"`
	Filters []AccountFilter `json:"filters,omitempty"`
}

type listAccountsResult struct {
	Accounts []*Account `json:"accounts"`
}

func (self *GatewayClient) ListAccounts(ctx context.Context, kind AccountKind, filters []AccountFilter) ([]*Account, error) {
	args := &listAccountsArgs{
		Kind:    kind,
		Filters: filters,
	}
	result, err := post(ctx, self.httpClient, fmt.Sprintf("%s/accounts/list", self.gatewayUrl), args, self.sessionToken, &listAccountsResult{})
	if err != nil {
		return nil, err
	}
	return result.Accounts, nil
}

type fetchAccountArgs struct {
	Address     Address     `json:"address"`
	Consistency Consistency `json:"consistency"`
}

type fetchAccountResult struct {
	Account *Account `json:"account"`
}

func (self *GatewayClient) FetchAccount(ctx context.Context, address Address, consistency Consistency) (*Account, error) {
	args := &fetchAccountArgs{
		Address:     address,
		Consistency: consistency,
	}
	result, err := post(ctx, self.httpClient, fmt.Sprintf("%s/accounts/fetch", self.gatewayUrl), args, self.sessionToken, &fetchAccountResult{})
	if err != nil {
		return nil, err
	}
	// nil account means absent
	return result.Account, nil
}

type submitMutationResult struct {
	TxId  TxId                 `json:"tx_id,omitempty"`
	Error *submitMutationError `json:"error,omitempty"`
}

type submitMutationError struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Declined bool   `json:"declined,omitempty"`
}

func (self *GatewayClient) SubmitMutation(ctx context.Context, call *MutationCall) (TxId, error) {
	return TraceWithReturnError(fmt.Sprintf("submit %s", call.Method), func() (TxId, error) {
		return self.submitMutation(ctx, call)
	})
}

func (self *GatewayClient) submitMutation(ctx context.Context, call *MutationCall) (TxId, error) {
	result, err := post(ctx, self.httpClient, fmt.Sprintf("%s/mutations/submit", self.gatewayUrl), call, self.sessionToken, &submitMutationResult{})
	if err != nil {
		return "", err
	}
	if result.Error != nil {
		if result.Error.Declined {
			// the signer chose not to approve. A neutral cancellation,
			// not a failure.
			return "", ErrCanceled
		}
		return "", NewRejectedError(result.Error.Code, result.Error.Message)
	}
	return result.TxId, nil
}

type accountChangeEvent struct {
	Address Address     `json:"address"`
	Kind    AccountKind `json:"kind"`
}

// SubscribeAccountChanges maintains a websocket to the gateway change feed
// and invokes the callback for each changed account of the kind. The
// connection reconnects with a fixed pause until unsubscribed.
func (self *GatewayClient) SubscribeAccountChanges(ctx context.Context, kind AccountKind, callback func(Address)) (func(), error) {
	handleCtx, handleCancel := context.WithCancel(self.ctx)

	subscribeUrl := fmt.Sprintf("%s/accounts/subscribe?kind=%s", self.subscribeUrl, kind)

	go func() {
		for {
			connect := func() (*websocket.Conn, error) {
				dialer := &websocket.Dialer{
					HandshakeTimeout: self.settings.AuthTimeout,
				}
				header := http.Header{}
				if self.sessionToken != "" {
					header.Add("Authorization", fmt.Sprintf("Bearer %s", self.sessionToken))
				}
				ws, _, err := dialer.DialContext(handleCtx, subscribeUrl, header)
				if err != nil {
					return nil, err
				}
				return ws, nil
			}

			ws, err := connect()
			if err != nil {
				glog.Infof("[sub]connect error = %s\n", err)
				select {
				case <-handleCtx.Done():
					return
				case <-time.After(self.settings.ReconnectTimeout):
					continue
				}
			}

			func() {
				defer ws.Close()

				go func() {
					// close the read loop when unsubscribed
					<-handleCtx.Done()
					ws.Close()
				}()

				for {
					ws.SetReadDeadline(time.Now().Add(self.settings.PingTimeout))
					messageType, message, err := ws.ReadMessage()
					if err != nil {
						glog.V(2).Infof("[sub]read error = %s\n", err)
						return
					}
					switch messageType {
					case websocket.TextMessage:
						var event accountChangeEvent
						if err := json.Unmarshal(message, &event); err != nil {
							glog.Infof("[sub]bad event = %s\n", err)
							continue
						}
						if event.Kind == kind {
							HandleError(func() {
								callback(event.Address)
							})
						}
					}
				}
			}()

			select {
			case <-handleCtx.Done():
				return
			case <-time.After(self.settings.ReconnectTimeout):
			}
		}
	}()

	return handleCancel, nil
}

func post[A any, R any](ctx context.Context, client *http.Client, url string, args A, sessionToken string, result R) (R, error) {
	var empty R

	requestBodyBytes, err := json.Marshal(args)
	if err != nil {
		return empty, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if sessionToken != "" {
		auth := fmt.Sprintf("Bearer %s", sessionToken)
		req.Header.Add("Authorization", auth)
	}

	r, err := client.Do(req)
	if err != nil {
		// network errors are transient
		return empty, NewTransientError(err)
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return empty, NewTransientError(err)
	}

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		if r.StatusCode == http.StatusTooManyRequests || 500 <= r.StatusCode {
			return empty, NewTransientError(fmt.Errorf("status %d: %s", r.StatusCode, errorMessage))
		}
		return empty, errors.New(errorMessage)
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		return empty, err
	}

	return result, nil
}
