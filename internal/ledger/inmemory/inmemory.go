// Package inmemory implements the ownership contract in process. It is the
// authority the workflow engine talks to in tests and local development,
// enforcing the same rules the deployed contract enforces: one identity per
// address, brand-only asset registration, unique asset ids, and at most one
// pending transfer per asset.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"provenly.org/internal/ledger"
	"provenly.org/internal/wallet"
)

type assetState struct {
	record  ledger.AssetRecord
	history []ledger.OwnershipRecord
	pending *ledger.PendingTransfer
}

// Ledger is an in-process ownership contract.
type Ledger struct {
	mu         sync.RWMutex
	admin      wallet.Account
	identities map[wallet.Account]ledger.Identity
	brands     map[wallet.Account]bool
	assets     map[string]*assetState
	owned      map[wallet.Account][]string
	seq        uint64

	subs    map[int]subscription
	nextSub int

	now func() time.Time
}

type subscription struct {
	assetID string
	ch      chan ledger.OwnershipRecord
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithBrand seeds a brand account without going through the admin flow.
func WithBrand(addr wallet.Account) Option {
	return func(l *Ledger) { l.brands[addr.Normalize()] = true }
}

// New creates an empty ledger whose registerBrand method only accepts
// transactions from admin.
func New(admin wallet.Account, opts ...Option) *Ledger {
	l := &Ledger{
		admin:      admin,
		identities: make(map[wallet.Account]ledger.Identity),
		brands:     make(map[wallet.Account]bool),
		assets:     make(map[string]*assetState),
		owned:      make(map[wallet.Account][]string),
		subs:       make(map[int]subscription),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ ledger.Client = (*Ledger)(nil)
var _ ledger.Watcher = (*Ledger)(nil)

// Call dispatches a read-only contract method.
func (l *Ledger) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch method {
	case ledger.MethodGetDigitalIdentity:
		addr, err := accountArg(args, 0)
		if err != nil {
			return nil, err
		}
		id, ok := l.identities[addr.Normalize()]
		if !ok {
			id = ledger.Identity{Address: addr, IsBrand: l.brands[addr.Normalize()]}
		}
		return marshal(id)

	case ledger.MethodVerifyBrand:
		addr, err := accountArg(args, 0)
		if err != nil {
			return nil, err
		}
		return marshal(l.brands[addr.Normalize()])

	case ledger.MethodGetAsset:
		st, err := l.assetArg(args)
		if err != nil {
			return nil, err
		}
		return marshal(st.record)

	case ledger.MethodGetUserAssets:
		addr, err := accountArg(args, 0)
		if err != nil {
			return nil, err
		}
		ids := l.owned[addr.Normalize()]
		if ids == nil {
			ids = []string{}
		}
		return marshal(ids)

	case ledger.MethodVerifyOwner:
		st, err := l.assetArg(args)
		if err != nil {
			return nil, err
		}
		return marshal(l.ownerLocked(st))

	case ledger.MethodPendingTransfer:
		st, err := l.assetArg(args)
		if err != nil {
			return nil, err
		}
		if st.pending == nil {
			// The deployed contract returns a record with the zero
			// address as recipient when nothing is pending.
			return marshal(ledger.PendingTransfer{
				AssetID: st.record.AssetID,
				From:    ledger.ZeroAddress,
				To:      ledger.ZeroAddress,
			})
		}
		return marshal(*st.pending)

	case ledger.MethodOwnershipHistory:
		st, err := l.assetArg(args)
		if err != nil {
			return nil, err
		}
		return marshal(st.history)
	}
	return nil, fmt.Errorf("%w: unknown method %q", ledger.ErrTransport, method)
}

// Send executes a state-changing contract method as a single transaction.
func (l *Ledger) Send(ctx context.Context, from wallet.Account, method string, args ...any) (wallet.TxHandle, error) {
	if from.IsZero() {
		return "", wallet.ErrNotConnected
	}

	l.mu.Lock()
	var emitted *ledger.OwnershipRecord
	var err error
	switch method {
	case ledger.MethodAddUser:
		err = l.addUserLocked(from, args)
	case ledger.MethodRegisterBrand:
		err = l.registerBrandLocked(from, args)
	case ledger.MethodRegisterAsset:
		emitted, err = l.registerAssetLocked(from, args)
	case ledger.MethodInitiateTransfer:
		err = l.initiateLocked(from, args)
	case ledger.MethodCancelTransfer:
		err = l.cancelLocked(from, args)
	case ledger.MethodConfirmTransfer:
		emitted, err = l.confirmLocked(from, args)
	default:
		err = fmt.Errorf("%w: unknown method %q", ledger.ErrTransport, method)
	}
	l.mu.Unlock()

	if err != nil {
		return "", err
	}
	if emitted != nil {
		l.publish(*emitted)
	}
	return wallet.TxHandle(fmt.Sprintf("0xmem%016d", l.lastSeq())), nil
}

// WatchTransfers subscribes to appended ownership records. The channel
// closes when ctx is done; resubscribe to restart.
func (l *Ledger) WatchTransfers(ctx context.Context, assetID string) (<-chan ledger.OwnershipRecord, error) {
	ch := make(chan ledger.OwnershipRecord, 16)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = subscription{assetID: assetID, ch: ch}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub.ch)
		}
		l.mu.Unlock()
	}()
	return ch, nil
}

// Contract mutations ------------------------------------------------------

func (l *Ledger) addUserLocked(from wallet.Account, args []any) error {
	name, err := stringArg(args, 0)
	if err != nil {
		return err
	}
	addr, err := accountArg(args, 1)
	if err != nil {
		return err
	}
	if !addr.Equal(from) {
		return ledger.Revert("identity address must match sender")
	}
	if name == "" {
		return ledger.Revert("display name must not be empty")
	}
	key := addr.Normalize()
	if existing, ok := l.identities[key]; ok && existing.Registered() {
		return ledger.Revert("identity already registered")
	}
	l.identities[key] = ledger.Identity{
		Address: addr,
		Name:    name,
		IsBrand: l.brands[key],
	}
	return nil
}

func (l *Ledger) registerBrandLocked(from wallet.Account, args []any) error {
	if !from.Equal(l.admin) {
		return ledger.Revert("only admin may register brands")
	}
	addr, err := accountArg(args, 0)
	if err != nil {
		return err
	}
	key := addr.Normalize()
	l.brands[key] = true
	if id, ok := l.identities[key]; ok {
		id.IsBrand = true
		l.identities[key] = id
	}
	return nil
}

func (l *Ledger) registerAssetLocked(from wallet.Account, args []any) (*ledger.OwnershipRecord, error) {
	assetID, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, 1)
	if err != nil {
		return nil, err
	}
	metadataCID, err := stringArg(args, 2)
	if err != nil {
		return nil, err
	}
	if !l.brands[from.Normalize()] {
		return nil, ledger.Revert("sender is not a registered brand")
	}
	if _, exists := l.assets[assetID]; exists {
		return nil, ledger.Revert("asset id already registered")
	}

	l.seq++
	genesis := ledger.OwnershipRecord{
		AssetID:   assetID,
		From:      ledger.ZeroAddress,
		To:        from,
		Timestamp: l.now().Unix(),
		Sequence:  l.seq,
	}
	l.assets[assetID] = &assetState{
		record: ledger.AssetRecord{
			AssetID:     assetID,
			Name:        name,
			MetadataCID: metadataCID,
			Registrant:  from,
		},
		history: []ledger.OwnershipRecord{genesis},
	}
	l.owned[from.Normalize()] = append(l.owned[from.Normalize()], assetID)
	return &genesis, nil
}

func (l *Ledger) initiateLocked(from wallet.Account, args []any) error {
	st, err := l.assetArg(args)
	if err != nil {
		return err
	}
	to, err := accountArg(args, 1)
	if err != nil {
		return err
	}
	owner := l.ownerLocked(st)
	if !from.Equal(owner) {
		return ledger.Revert("sender is not the asset owner")
	}
	if to.IsZero() || to.Equal(owner) {
		return ledger.Revert("invalid transfer recipient")
	}
	if st.pending != nil {
		return ledger.Revert("a transfer is already pending")
	}
	st.pending = &ledger.PendingTransfer{
		AssetID: st.record.AssetID,
		From:    owner,
		To:      to,
	}
	return nil
}

func (l *Ledger) cancelLocked(from wallet.Account, args []any) error {
	st, err := l.assetArg(args)
	if err != nil {
		return err
	}
	if st.pending == nil {
		return ledger.Revert("no pending transfer")
	}
	if !from.Equal(st.pending.From) && !from.Equal(st.pending.To) {
		return ledger.Revert("sender is not a party to the transfer")
	}
	st.pending = nil
	return nil
}

func (l *Ledger) confirmLocked(from wallet.Account, args []any) (*ledger.OwnershipRecord, error) {
	st, err := l.assetArg(args)
	if err != nil {
		return nil, err
	}
	if st.pending == nil {
		return nil, ledger.Revert("no pending transfer")
	}
	if !from.Equal(st.pending.To) {
		return nil, ledger.Revert("sender is not the transfer recipient")
	}

	prev := st.pending.From
	l.seq++
	rec := ledger.OwnershipRecord{
		AssetID:   st.record.AssetID,
		From:      prev,
		To:        from,
		Timestamp: l.now().Unix(),
		Sequence:  l.seq,
	}
	st.history = append(st.history, rec)
	st.pending = nil
	l.owned[prev.Normalize()] = remove(l.owned[prev.Normalize()], st.record.AssetID)
	l.owned[from.Normalize()] = append(l.owned[from.Normalize()], st.record.AssetID)
	return &rec, nil
}

// Helpers -----------------------------------------------------------------

func (l *Ledger) ownerLocked(st *assetState) wallet.Account {
	return st.history[len(st.history)-1].To
}

func (l *Ledger) assetArg(args []any) (*assetState, error) {
	assetID, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	st, ok := l.assets[assetID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return st, nil
}

func (l *Ledger) publish(rec ledger.OwnershipRecord) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, sub := range l.subs {
		if sub.assetID != "" && sub.assetID != rec.AssetID {
			continue
		}
		select {
		case sub.ch <- rec:
		default:
			// Slow consumers drop events; they re-read history on restart.
		}
	}
}

func (l *Ledger) lastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

func marshal(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransport, err)
	}
	return data, nil
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", ledger.Revert(fmt.Sprintf("missing argument %d", i))
	}
	s, ok := args[i].(string)
	if !ok {
		return "", ledger.Revert(fmt.Sprintf("argument %d must be a string", i))
	}
	return s, nil
}

func accountArg(args []any, i int) (wallet.Account, error) {
	s, err := stringArg(args, i)
	if err != nil {
		return "", err
	}
	return wallet.Account(s), nil
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
