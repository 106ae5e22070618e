package memory

import (
	"context"
	"sort"
	"sync"

	"budgetsync/internal/domain/linkedaccount"
)

// LinkedAccountRepository implements linkedaccount.Repository in memory.
type LinkedAccountRepository struct {
	hooked
	mu       sync.RWMutex
	accounts map[string]linkedaccount.Account
}

var _ linkedaccount.Repository = (*LinkedAccountRepository)(nil)

// NewLinkedAccountRepository creates an empty repository.
func NewLinkedAccountRepository() *LinkedAccountRepository {
	return &LinkedAccountRepository{accounts: make(map[string]linkedaccount.Account)}
}

func (r *LinkedAccountRepository) Upsert(ctx context.Context, acc *linkedaccount.Account) (*linkedaccount.Account, error) {
	if err := r.before(OpUpsert, acc.ID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *acc
	if existing, ok := r.accounts[acc.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
		stored.Email = existing.Email
	}
	r.accounts[acc.ID] = stored

	out := stored
	return &out, nil
}

func (r *LinkedAccountRepository) GetByID(ctx context.Context, id string) (*linkedaccount.Account, error) {
	if err := r.before(OpGet, id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[id]
	if !ok {
		return nil, linkedaccount.ErrAccountNotFound
	}
	return &acc, nil
}

func (r *LinkedAccountRepository) List(ctx context.Context) ([]*linkedaccount.Account, error) {
	if err := r.before(OpList, nil); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]*linkedaccount.Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		a := acc
		accounts = append(accounts, &a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// Len returns the number of stored accounts.
func (r *LinkedAccountRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}
