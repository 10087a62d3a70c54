package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"techcharades/internal/dict"
	"techcharades/internal/domain"
	"techcharades/internal/leaderboard"
	"techcharades/internal/letters"
	"techcharades/internal/obslog"
	"techcharades/internal/results"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNameRequired    = errors.New("participant name is required")
	ErrSessionNotFound = errors.New("game session not found")
	ErrAlreadyPlaying  = errors.New("game session already in progress")
	ErrNotPlaying      = errors.New("game session is not in play")
	ErrInvalidTerm     = errors.New("term is empty or does not start with the current letter")
)

// session is the transient state of one play-through. All fields are
// guarded by mu; the tick goroutine and the submit handler both re-check
// state before consuming a round, so a racing tick and submit can never
// consume the same round twice.
type session struct {
	mu sync.Mutex

	id          string
	participant domain.Participant

	state      State
	round      int
	letter     string
	deadline   time.Time
	input      string
	inputError bool

	autoScore float64
	rounds    []domain.RoundRecord

	resultID string
	stop     chan struct{}
}

// Manager owns all live game sessions and drives their countdowns.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	cfg        Config
	letters    *letters.Source
	classifier dict.Classifier
	repo       results.Repository

	live  *LiveStore
	board *leaderboard.Board
}

func NewManager(cfg Config, src *letters.Source, classifier dict.Classifier, repo results.Repository) *Manager {
	return &Manager{
		sessions:   make(map[string]*session),
		cfg:        cfg.withDefaults(),
		letters:    src,
		classifier: classifier,
		repo:       repo,
	}
}

// AttachLiveStore wires a redis snapshot store for active sessions.
func (m *Manager) AttachLiveStore(s *LiveStore) {
	if m != nil {
		m.live = s
	}
}

// AttachLeaderboard wires the final-score board updated at game end.
func (m *Manager) AttachLeaderboard(b *leaderboard.Board) {
	if m != nil {
		m.board = b
	}
}

// CreateSession registers a participant and returns an idle session.
func (m *Manager) CreateSession(ctx context.Context, p domain.Participant) (*Snapshot, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.StudentID = strings.TrimSpace(p.StudentID)
	if p.Name == "" {
		return nil, ErrNameRequired
	}

	s := &session{
		id:          uuid.NewString(),
		participant: p,
		state:       StateIdle,
	}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	s.mu.Lock()
	snap := s.snapshot(m.cfg.MaxRounds)
	s.mu.Unlock()

	obslog.L().Info("session_create", zap.String("session_id", s.id), zap.String("name", p.Name))
	m.saveLive(ctx, snap)
	return snap, nil
}

// Start begins a new game from Idle or restarts one from GameOver: round
// counter back to 1, history cleared, fresh letter, countdown armed.
func (m *Manager) Start(ctx context.Context, sessionID string) (*Snapshot, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == StatePlaying {
		s.mu.Unlock()
		return nil, ErrAlreadyPlaying
	}
	s.state = StatePlaying
	s.round = 1
	s.rounds = nil
	s.autoScore = 0
	s.resultID = ""
	s.letter = m.letters.Draw()
	s.deadline = time.Now().Add(m.cfg.Duration)
	s.input = ""
	s.inputError = false
	s.stop = make(chan struct{})
	stop := s.stop
	snap := s.snapshot(m.cfg.MaxRounds)
	s.mu.Unlock()

	go m.runCountdown(s, stop)

	obslog.L().Info("game_start", zap.String("session_id", s.id), zap.String("letter", snap.Letter))
	m.saveLive(ctx, snap)
	return snap, nil
}

// runCountdown re-evaluates the stored deadline on every tick instead of
// decrementing a counter, so missed ticks cannot drift the clock. It exits
// as soon as the session leaves Playing.
func (m *Manager) runCountdown(s *session, stop chan struct{}) {
	t := time.NewTicker(m.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.mu.Lock()
			if s.state != StatePlaying {
				s.mu.Unlock()
				return
			}
			if time.Now().Before(s.deadline) {
				s.mu.Unlock()
				continue
			}
			round := s.round
			input := s.input
			s.mu.Unlock()

			// Classification runs unlocked so a slow classifier cannot
			// stall snapshot reads or other sessions' submits.
			verification := m.classifier.Classify(context.Background(), input)

			s.mu.Lock()
			if s.state != StatePlaying {
				s.mu.Unlock()
				return
			}
			if s.round != round || time.Now().Before(s.deadline) {
				// A submit consumed the round while the partial text was
				// being classified.
				s.mu.Unlock()
				continue
			}
			// Time ran out: a timeout is a regular round end worth 0
			// points, keeping whatever partial text existed.
			m.endRound(s, 0, 0, input, verification)
			playing := s.state == StatePlaying
			snap := s.snapshot(m.cfg.MaxRounds)
			s.mu.Unlock()
			m.saveLive(context.Background(), snap)
			if !playing {
				return
			}
		}
	}
}

// Submit validates the typed term against the current letter. A failed
// validation sets the error flag and leaves the round running; a valid one
// scores the seconds remaining and advances the game.
func (m *Manager) Submit(ctx context.Context, sessionID, text string) (*Snapshot, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state != StatePlaying {
		snap := s.snapshot(m.cfg.MaxRounds)
		s.mu.Unlock()
		return snap, ErrNotPlaying
	}

	s.input = text
	trimmed := strings.ToUpper(strings.TrimSpace(text))
	if trimmed == "" || !strings.HasPrefix(trimmed, s.letter) {
		s.inputError = true
		snap := s.snapshot(m.cfg.MaxRounds)
		s.mu.Unlock()
		return snap, ErrInvalidTerm
	}
	remaining := time.Until(s.deadline).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	round := s.round
	armedAt := s.deadline
	s.mu.Unlock()

	// Classification runs unlocked; the remaining time was already fixed
	// above, so classifier latency never costs points.
	verification := m.classifier.Classify(ctx, text)

	s.mu.Lock()
	if s.state != StatePlaying || s.round != round || !s.deadline.Equal(armedAt) {
		// The round was consumed by a timeout (or the game restarted)
		// while the term was being classified.
		snap := s.snapshot(m.cfg.MaxRounds)
		s.mu.Unlock()
		return snap, ErrNotPlaying
	}
	err = m.endRound(s, remaining, remaining, text, verification)
	snap := s.snapshot(m.cfg.MaxRounds)
	s.mu.Unlock()
	if err != nil {
		return snap, err
	}
	m.saveLive(ctx, snap)
	return snap, nil
}

// UpdateInput mirrors the in-progress text so a timeout can capture it,
// and clears the validation error flag.
func (m *Manager) UpdateInput(_ context.Context, sessionID, text string) (*Snapshot, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		s.input = text
		s.inputError = false
	}
	return s.snapshot(m.cfg.MaxRounds), nil
}

// Snapshot returns the current render view of a session. For an id not
// held in memory it falls back to the last live-store snapshot, giving a
// read-only view of sessions started by a previous process.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		if m.live != nil {
			if snap, lerr := m.live.Load(ctx, sessionID); lerr == nil && snap != nil {
				return snap, nil
			}
		}
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(m.cfg.MaxRounds), nil
}

// Close disarms every live countdown. Sessions are transient and are not
// recovered across restarts; only finished results persist.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.stop != nil {
			select {
			case <-s.stop:
			default:
				close(s.stop)
			}
			s.stop = nil
		}
		s.mu.Unlock()
	}
}

// endRound consumes the current round. Caller must hold s.mu and have
// verified state == Playing; that check is the idempotence guard from the
// submit/timeout race.
func (m *Manager) endRound(s *session, points, remaining float64, submittedText string, verification domain.Verification) error {
	rec := domain.RoundRecord{
		Round:         s.round,
		Letter:        s.letter,
		SubmittedTerm: submittedText,
		TimeRemaining: remaining,
		Points:        points,
		Verification:  verification,
	}
	s.rounds = append(s.rounds, rec)
	s.autoScore += points

	obslog.L().Info("round_end",
		zap.String("session_id", s.id),
		zap.Int("round", rec.Round),
		zap.String("letter", rec.Letter),
		zap.Float64("points", rec.Points),
		zap.String("verification", string(rec.Verification)),
	)

	if s.round >= m.cfg.MaxRounds {
		return m.finishGame(s)
	}

	s.round++
	s.letter = m.letters.Draw()
	s.deadline = time.Now().Add(m.cfg.Duration)
	s.input = ""
	s.inputError = false
	return nil
}

// finishGame freezes the auto score into a ResultRecord and persists it.
// The in-memory GameOver view is kept even when the write fails; the
// failure is surfaced, not masked.
func (m *Manager) finishGame(s *session) error {
	s.state = StateGameOver

	result := &domain.ResultRecord{
		Participant: s.participant,
		AutoScore:   s.autoScore,
		Rounds:      append([]domain.RoundRecord(nil), s.rounds...),
		CreatedAt:   time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := m.repo.Create(ctx, result)
	if err != nil {
		obslog.L().Error("result_persist_error", zap.String("session_id", s.id), zap.Error(err))
		return fmt.Errorf("persist game result: %w", err)
	}
	s.resultID = id

	obslog.L().Info("game_over",
		zap.String("session_id", s.id),
		zap.String("result_id", id),
		zap.Float64("auto_score", s.autoScore),
	)

	if m.board != nil {
		if err := m.board.Record(ctx, s.participant, s.autoScore); err != nil {
			obslog.L().Warn("leaderboard_update_error", zap.String("session_id", s.id), zap.Error(err))
		}
	}
	if m.live != nil {
		if err := m.live.Delete(ctx, s.id); err != nil {
			obslog.L().Warn("live_delete_error", zap.String("session_id", s.id), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) lookup(sessionID string) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[strings.TrimSpace(sessionID)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) saveLive(ctx context.Context, snap *Snapshot) {
	if m.live == nil || snap == nil || snap.State == StateGameOver {
		return
	}
	if err := m.live.Save(ctx, snap); err != nil {
		obslog.L().Warn("live_save_error", zap.String("session_id", snap.SessionID), zap.Error(err))
	}
}

// snapshot builds the render view. Caller must hold s.mu.
func (s *session) snapshot(maxRounds int) *Snapshot {
	snap := &Snapshot{
		SessionID:   s.id,
		Participant: s.participant,
		State:       s.state,
		Round:       s.round,
		MaxRounds:   maxRounds,
		AutoScore:   s.autoScore,
		InputError:  s.inputError,
		Rounds:      append([]domain.RoundRecord(nil), s.rounds...),
		ResultID:    s.resultID,
	}
	if s.state == StatePlaying {
		snap.Letter = s.letter
		if remaining := time.Until(s.deadline).Seconds(); remaining > 0 {
			snap.TimeRemaining = remaining
		}
	}
	return snap
}
