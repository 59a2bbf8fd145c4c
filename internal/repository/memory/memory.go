// Package memory implements repository.Storage on plain maps. It backs unit
// tests and single-node runs where postgres would be overkill; the postgres
// implementation is the production one.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
)

type data struct {
	applicants  map[uuid.UUID]models.Applicant
	withdrawals map[uuid.UUID]models.Withdrawal
	records     []models.ProcessRecord
	earnings    map[uuid.UUID][]repository.AddEarningParams
}

func (d *data) clone() *data {
	c := &data{
		applicants:  make(map[uuid.UUID]models.Applicant, len(d.applicants)),
		withdrawals: make(map[uuid.UUID]models.Withdrawal, len(d.withdrawals)),
		records:     make([]models.ProcessRecord, len(d.records)),
		earnings:    make(map[uuid.UUID][]repository.AddEarningParams, len(d.earnings)),
	}
	for id, a := range d.applicants {
		c.applicants[id] = a
	}
	for id, w := range d.withdrawals {
		c.withdrawals[id] = w
	}
	copy(c.records, d.records)
	for id, e := range d.earnings {
		c.earnings[id] = append([]repository.AddEarningParams(nil), e...)
	}
	return c
}

type Storage struct {
	mu   sync.Mutex
	data *data
}

func NewStorage() *Storage {
	return &Storage{
		data: &data{
			applicants:  make(map[uuid.UUID]models.Applicant),
			withdrawals: make(map[uuid.UUID]models.Withdrawal),
			earnings:    make(map[uuid.UUID][]repository.AddEarningParams),
		},
	}
}

// session routes repo calls either through the storage mutex or, inside a
// transaction, straight at the transaction's working copy (the mutex is held
// for the whole transaction then).
type session struct {
	s *Storage // nil inside a transaction
	d *data
}

func (ss *session) run(fn func(d *data) error) error {
	if ss.s != nil {
		ss.s.mu.Lock()
		defer ss.s.mu.Unlock()
		return fn(ss.s.data)
	}
	return fn(ss.d)
}

func (s *Storage) session() *session { return &session{s: s} }

func (s *Storage) Applicants() repository.ApplicantRepo { return &applicantRepo{s.session()} }

func (s *Storage) Withdrawals() repository.WithdrawalRepo { return &withdrawalRepo{s.session()} }

func (s *Storage) ProcessLog() repository.ProcessLogRepo { return &processLogRepo{s.session()} }

func (s *Storage) Earnings() repository.EarningsRepo { return &earningsRepo{s.session()} }

// InTx holds the storage lock for the whole callback and works on a copy of
// the data, swapped in on success. Serializes every transition like the
// per-row and per-applicant locks do in postgres.
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	txStorage := &txStorage{d: work}

	if err := fn(txStorage); err != nil {
		return err
	}

	s.data = work
	return nil
}

type txStorage struct {
	d *data
}

func (t *txStorage) session() *session { return &session{d: t.d} }

func (t *txStorage) Applicants() repository.ApplicantRepo { return &applicantRepo{t.session()} }

func (t *txStorage) Withdrawals() repository.WithdrawalRepo { return &withdrawalRepo{t.session()} }

func (t *txStorage) ProcessLog() repository.ProcessLogRepo { return &processLogRepo{t.session()} }

func (t *txStorage) Earnings() repository.EarningsRepo { return &earningsRepo{t.session()} }

// Nested transactions just run in the enclosing one.
func (t *txStorage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	return fn(t)
}
