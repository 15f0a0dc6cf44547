package ledger

import (
	"context"
	"sync"
	"time"

	"namehaus/pkg/domain"
	"namehaus/pkg/platform/sentinel"
	"namehaus/pkg/requestcontext"
)

// InMemoryLedger keeps records in a map guarded by a RWMutex. It is the
// default store for tests and single-node deployments.
type InMemoryLedger struct {
	mu        sync.RWMutex
	records   map[domain.TokenID]Record
	approvals map[domain.TokenID]domain.Address
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		records:   make(map[domain.TokenID]Record),
		approvals: make(map[domain.TokenID]domain.Address),
	}
}

func (l *InMemoryLedger) Available(ctx context.Context, tokenID domain.TokenID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[tokenID]
	if !ok {
		return true, nil
	}
	return rec.Expired(requestcontext.Now(ctx)), nil
}

func (l *InMemoryLedger) OwnerOf(_ context.Context, tokenID domain.TokenID) (domain.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[tokenID]
	if !ok {
		return domain.Address{}, sentinel.ErrNotFound
	}
	return rec.Owner, nil
}

func (l *InMemoryLedger) ExpiresAt(_ context.Context, tokenID domain.TokenID) (time.Time, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[tokenID]
	if !ok {
		return time.Time{}, sentinel.ErrNotFound
	}
	return rec.Expiry, nil
}

func (l *InMemoryLedger) MintOrExtend(_ context.Context, tokenID domain.TokenID, label string, owner domain.Address, expiry time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[tokenID] = Record{
		Label:   label,
		TokenID: tokenID,
		Owner:   owner,
		Expiry:  expiry,
		Custody: CustodyOwned,
	}
	delete(l.approvals, tokenID)
	return nil
}

func (l *InMemoryLedger) TransferCustody(_ context.Context, tokenID domain.TokenID, to domain.Address, custody CustodyState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[tokenID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Owner = to
	rec.Custody = custody
	l.records[tokenID] = rec
	delete(l.approvals, tokenID)
	return nil
}

func (l *InMemoryLedger) Approve(_ context.Context, tokenID domain.TokenID, operator domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[tokenID]; !ok {
		return sentinel.ErrNotFound
	}
	l.approvals[tokenID] = operator
	return nil
}

func (l *InMemoryLedger) IsApproved(_ context.Context, tokenID domain.TokenID, operator domain.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.approvals[tokenID] == operator && !operator.IsZero(), nil
}

// Record returns a copy of the stored record for test assertions.
func (l *InMemoryLedger) Record(tokenID domain.TokenID) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[tokenID]
	return rec, ok
}
