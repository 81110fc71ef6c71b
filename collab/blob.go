package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"
)

// BlobStore is the content-addressed store for larger optional payloads
// (profile pictures, structured metadata json). Absence is tolerated:
// callers render a placeholder.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, cid string) ([]byte, bool, error)
}

// GatewayBlobStore talks to the blob gateway over http.
type GatewayBlobStore struct {
	blobUrl    string
	httpClient *http.Client
}

func NewGatewayBlobStore(blobUrl string) *GatewayBlobStore {
	return &GatewayBlobStore{
		blobUrl:    blobUrl,
		httpClient: defaultClient(),
	}
}

type putBlobResult struct {
	Cid string `json:"cid"`
}

func (self *GatewayBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/blobs", self.blobUrl), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Add("Content-Type", "application/octet-stream")

	r, err := self.httpClient.Do(req)
	if err != nil {
		return "", NewTransientError(err)
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return "", NewTransientError(err)
	}
	if http.StatusOK != r.StatusCode {
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		if r.StatusCode == http.StatusTooManyRequests || 500 <= r.StatusCode {
			return "", NewTransientError(fmt.Errorf("status %d: %s", r.StatusCode, errorMessage))
		}
		return "", fmt.Errorf("put blob: %s", errorMessage)
	}

	var result putBlobResult
	if err := json.Unmarshal(responseBodyBytes, &result); err != nil {
		return "", err
	}
	return result.Cid, nil
}

func (self *GatewayBlobStore) Get(ctx context.Context, cid string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/blobs/%s", self.blobUrl, cid), nil)
	if err != nil {
		return nil, false, err
	}

	r, err := self.httpClient.Do(req)
	if err != nil {
		return nil, false, NewTransientError(err)
	}
	defer r.Body.Close()

	if r.StatusCode == http.StatusNotFound {
		// absent is a valid outcome
		return nil, false, nil
	}
	if http.StatusOK != r.StatusCode {
		if r.StatusCode == http.StatusTooManyRequests || 500 <= r.StatusCode {
			return nil, false, NewTransientError(fmt.Errorf("status %d", r.StatusCode))
		}
		return nil, false, fmt.Errorf("get blob: status %d", r.StatusCode)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, NewTransientError(err)
	}
	return data, true, nil
}

// CachingBlobStore caches fetched payloads in the local store, keyed by
// content id. Content-addressed payloads never change, so there is no ttl.
type CachingBlobStore struct {
	inner BlobStore
	store LocalStore
}

func NewCachingBlobStore(inner BlobStore, store LocalStore) *CachingBlobStore {
	return &CachingBlobStore{
		inner: inner,
		store: store,
	}
}

func (self *CachingBlobStore) key(cid string) string {
	return fmt.Sprintf("blobs/%s", cid)
}

func (self *CachingBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	cid, err := self.inner.Put(ctx, data)
	if err != nil {
		return "", err
	}
	if err := self.store.Set(self.key(cid), data); err != nil {
		glog.Infof("[blobs]cache put %s error = %s\n", cid, err)
	}
	return cid, nil
}

func (self *CachingBlobStore) Get(ctx context.Context, cid string) ([]byte, bool, error) {
	if data, ok, err := self.store.Get(self.key(cid)); err == nil && ok {
		return data, true, nil
	}
	data, ok, err := self.inner.Get(ctx, cid)
	if err != nil || !ok {
		return nil, ok, err
	}
	if err := self.store.Set(self.key(cid), data); err != nil {
		glog.Infof("[blobs]cache put %s error = %s\n", cid, err)
	}
	return data, true, nil
}
