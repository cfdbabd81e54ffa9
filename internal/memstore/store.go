// Package memstore keeps equipment, loans and returns in process memory.
// Transactions are serialized behind one mutex and rolled back by restoring
// a snapshot, which gives the same all-or-nothing behaviour as the Postgres
// repositories at serializable isolation.
package memstore

import (
	"context"
	"sync"

	"github.com/fekuna/omnipos-lending-service/internal/equipment"
	"github.com/fekuna/omnipos-lending-service/internal/loan"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/internal/returns"
	"github.com/fekuna/omnipos-lending-service/pkg/postgres"
)

type Store struct {
	mu        sync.Mutex
	equipment map[string]model.Equipment
	movements []model.EquipmentMovement
	loans     map[string]model.Loan
	returns   map[string]model.Return
}

func New() *Store {
	return &Store{
		equipment: map[string]model.Equipment{},
		loans:     map[string]model.Loan{},
		returns:   map[string]model.Return{},
	}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// acquire locks the store for a single statement unless ctx already runs
// inside one of this store's transactions.
func (s *Store) acquire(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	equipment map[string]model.Equipment
	movements []model.EquipmentMovement
	loans     map[string]model.Loan
	returns   map[string]model.Return
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		equipment: make(map[string]model.Equipment, len(s.equipment)),
		movements: make([]model.EquipmentMovement, len(s.movements)),
		loans:     make(map[string]model.Loan, len(s.loans)),
		returns:   make(map[string]model.Return, len(s.returns)),
	}
	for k, v := range s.equipment {
		snap.equipment[k] = v
	}
	copy(snap.movements, s.movements)
	for k, v := range s.loans {
		snap.loans[k] = v
	}
	for k, v := range s.returns {
		snap.returns[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.equipment = snap.equipment
	s.movements = snap.movements
	s.loans = snap.loans
	s.returns = snap.returns
}

func (s *Store) Equipment() *EquipmentRepository { return &EquipmentRepository{s: s} }
func (s *Store) Loans() *LoanRepository           { return &LoanRepository{s: s} }
func (s *Store) Returns() *ReturnRepository       { return &ReturnRepository{s: s} }

func page(total, pageNum, pageSize int) (int, int) {
	if pageSize <= 0 {
		return 0, total
	}
	if pageNum < 1 {
		pageNum = 1
	}
	start := (pageNum - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

var (
	_ postgres.Transactor  = (*Store)(nil)
	_ equipment.Repository = (*EquipmentRepository)(nil)
	_ loan.Repository      = (*LoanRepository)(nil)
	_ returns.Repository   = (*ReturnRepository)(nil)
)
