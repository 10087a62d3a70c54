package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"techcharades/internal/domain"
	"techcharades/internal/obslog"
	"techcharades/internal/results"

	"go.uber.org/zap"
)

var (
	ErrRoundNotFound   = errors.New("round index does not exist in record")
	ErrInvalidDecision = errors.New("decision must be accepted or rejected")
)

// Store applies reviewer decisions to persisted records. Calls touching
// the same record serialize on a per-record lock and always re-read the
// latest persisted round list before mutating, so two reviewers editing
// different rounds of one record cannot lose each other's update.
type Store struct {
	repo  results.Repository
	locks recordLocks
}

func NewStore(repo results.Repository) *Store {
	return &Store{repo: repo, locks: recordLocks{m: make(map[string]*sync.Mutex)}}
}

// SetVerification replaces one round's verification and recomputes the
// record's verified score over all accepted rounds. roundIndex is the
// 1-based round number. The mutated record is returned even when the
// write fails; the caller sees the optimistic view plus the error.
func (s *Store) SetVerification(ctx context.Context, recordID string, roundIndex int, decision domain.Verification) (*domain.ResultRecord, error) {
	if decision != domain.VerifyAccepted && decision != domain.VerifyRejected {
		return nil, ErrInvalidDecision
	}

	unlock := s.locks.lock(recordID)
	defer unlock()

	rec, err := s.repo.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range rec.Rounds {
		if rec.Rounds[i].Round == roundIndex {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: round %d of %s", ErrRoundNotFound, roundIndex, recordID)
	}

	rec.Rounds[idx].Verification = decision
	verified := domain.VerifiedSum(rec.Rounds)
	rec.VerifiedScore = &verified

	obslog.L().Info("verification_set",
		zap.String("record_id", recordID),
		zap.Int("round", roundIndex),
		zap.String("decision", string(decision)),
		zap.Float64("verified_score", verified),
	)

	if err := s.repo.UpdateVerification(ctx, recordID, rec.Rounds, verified); err != nil {
		obslog.L().Error("verification_persist_error", zap.String("record_id", recordID), zap.Error(err))
		return rec, fmt.Errorf("persist verification: %w", err)
	}
	return rec, nil
}

// lockRecord exposes the per-record serialization to the batch matcher.
func (s *Store) lockRecord(recordID string) func() {
	return s.locks.lock(recordID)
}

type recordLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *recordLocks) lock(id string) func() {
	l.mu.Lock()
	rm, ok := l.m[id]
	if !ok {
		rm = &sync.Mutex{}
		l.m[id] = rm
	}
	l.mu.Unlock()
	rm.Lock()
	return rm.Unlock
}
