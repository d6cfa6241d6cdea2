package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store computing real content ids. Re-uploading
// identical bytes yields the same id, exactly like a pinning service.
type Memory struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	names   map[string]string // cid -> pin name
	gateway string
	secret  []byte
	now     func() time.Time
}

// NewMemory creates an empty store. URLs are minted under gateway and
// signed with an instance-local secret.
func NewMemory() *Memory {
	return &Memory{
		blobs:   make(map[string][]byte),
		names:   make(map[string]string),
		gateway: "https://gateway.invalid/ipfs",
		secret:  []byte("local-dev-signing-secret"),
		now:     time.Now,
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Put(ctx context.Context, data []byte) (string, error) {
	id, err := ComputeCID(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		m.blobs[id] = stored
	}
	return id, nil
}

func (m *Memory) PutJSON(ctx context.Context, v any, name string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	id, err := m.Put(ctx, data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.names[id] = name + ".json"
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ValidateCID(id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) SignedURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	if err := ValidateCID(id); err != nil {
		return "", err
	}
	m.mu.RLock()
	_, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	expires := m.now().Add(ttl).Unix()
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s:%d", id, expires)
	sig := hex.EncodeToString(mac.Sum(nil))
	return m.gateway + "/" + id + "?expires=" + strconv.FormatInt(expires, 10) + "&sig=" + sig, nil
}

// PinName reports the name a JSON document was pinned under, for tests.
func (m *Memory) PinName(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.names[id]
}
