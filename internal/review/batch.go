package review

import (
	"context"
	"sort"
	"strings"
	"sync"

	"techcharades/internal/dict"
	"techcharades/internal/domain"
	"techcharades/internal/obslog"
	"techcharades/internal/results"

	"go.uber.org/zap"
)

// Report summarizes one batch-verification run. Failures are keyed by
// record ID; a failed record never blocks or rolls back the others.
type Report struct {
	Scanned  int              `json:"scanned"`
	Updated  int              `json:"updated"`
	Failures map[string]error `json:"-"`
}

// Matcher bulk-accepts rounds whose submitted term is in an approved set.
// Records are independent, so they are processed in parallel; each
// record's write succeeds or fails on its own.
type Matcher struct {
	repo  results.Repository
	store *Store
}

func NewMatcher(repo results.Repository, store *Store) *Matcher {
	return &Matcher{repo: repo, store: store}
}

// NormalizeTerms splits free-form input on newlines and commas and folds
// each piece to the canonical uppercase form. Separators exclude plain
// spaces so multi-word terms survive.
func NormalizeTerms(raw string) map[string]struct{} {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	set := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if k := dict.Normalize(p); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// Run matches every record's rounds against the approved set. Rounds that
// are rejected or pending both qualify: a batch match retroactively
// approves earlier rejections. Only changed records are written.
func (m *Matcher) Run(ctx context.Context, rawTerms string) (*Report, error) {
	approved := NormalizeTerms(rawTerms)
	report := &Report{Failures: make(map[string]error)}
	if len(approved) == 0 {
		return report, nil
	}

	recs, err := m.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	report.Scanned = len(recs)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, rec := range recs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			changed, err := m.applyToRecord(ctx, id, approved)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures[id] = err
				return
			}
			if changed {
				report.Updated++
			}
		}(rec.ID)
	}
	wg.Wait()

	obslog.L().Info("batch_verify",
		zap.Int("approved_terms", len(approved)),
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
		zap.Int("failed", len(report.Failures)),
	)
	return report, nil
}

func (m *Matcher) applyToRecord(ctx context.Context, recordID string, approved map[string]struct{}) (bool, error) {
	unlock := m.store.lockRecord(recordID)
	defer unlock()

	rec, err := m.repo.Get(ctx, recordID)
	if err != nil {
		return false, err
	}

	changed := false
	for i := range rec.Rounds {
		r := &rec.Rounds[i]
		if r.Verification == domain.VerifyAccepted {
			continue
		}
		if _, ok := approved[dict.Normalize(r.SubmittedTerm)]; ok {
			r.Verification = domain.VerifyAccepted
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	verified := domain.VerifiedSum(rec.Rounds)
	if err := m.repo.UpdateVerification(ctx, recordID, rec.Rounds, verified); err != nil {
		return false, err
	}
	return true, nil
}

// ExportPending collects the sorted, de-duplicated normalized terms from
// rounds not yet accepted across all records, for feeding to an external
// checker.
func ExportPending(recs []*domain.ResultRecord) []string {
	set := make(map[string]struct{})
	for _, rec := range recs {
		for _, r := range rec.Rounds {
			if r.Verification == domain.VerifyAccepted {
				continue
			}
			if k := dict.Normalize(r.SubmittedTerm); k != "" {
				set[k] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
