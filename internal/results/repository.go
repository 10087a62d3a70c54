package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"techcharades/internal/domain"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

var ErrNotFound = errors.New("result record not found")

// Repository is the persistence gateway for finished sessions. Review
// operations only ever rewrite rounds and verified_score; auto_score and
// the round payloads are frozen at creation.
type Repository interface {
	Create(ctx context.Context, rec *domain.ResultRecord) (string, error)
	ListAll(ctx context.Context) ([]*domain.ResultRecord, error)
	Get(ctx context.Context, id string) (*domain.ResultRecord, error)
	UpdateVerification(ctx context.Context, id string, rounds []domain.RoundRecord, verifiedScore float64) error
}

type repository struct {
	db *sql.DB
}

// NewPostgres opens the Postgres-backed repository and verifies connectivity.
func NewPostgres(databaseURL string) (Repository, *sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, nil, err
	}
	return &repository{db: db}, db, nil
}

func (r *repository) Create(ctx context.Context, rec *domain.ResultRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("nil result record payload")
	}
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	roundsRaw, err := json.Marshal(rec.Rounds)
	if err != nil {
		return "", fmt.Errorf("marshal rounds: %w", err)
	}

	const query = `
		INSERT INTO game_results (
			id,
			name,
			student_id,
			auto_score,
			rounds,
			verified_score,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`

	_, err = r.db.ExecContext(
		ctx,
		query,
		id,
		rec.Participant.Name,
		rec.Participant.StudentID,
		rec.AutoScore,
		roundsRaw,
		nullableScore(rec.VerifiedScore),
		createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert game result: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = createdAt
	return id, nil
}

func (r *repository) ListAll(ctx context.Context) ([]*domain.ResultRecord, error) {
	const query = `
		SELECT id, name, student_id, auto_score, rounds, verified_score, created_at
		FROM game_results
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select game results: %w", err)
	}
	defer rows.Close()

	var out []*domain.ResultRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (*domain.ResultRecord, error) {
	const query = `
		SELECT id, name, student_id, auto_score, rounds, verified_score, created_at
		FROM game_results
		WHERE id = $1`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repository) UpdateVerification(ctx context.Context, id string, rounds []domain.RoundRecord, verifiedScore float64) error {
	roundsRaw, err := json.Marshal(rounds)
	if err != nil {
		return fmt.Errorf("marshal rounds: %w", err)
	}
	const query = `
		UPDATE game_results
		SET rounds = $2::jsonb, verified_score = $3
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, roundsRaw, verifiedScore)
	if err != nil {
		return fmt.Errorf("update game result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*domain.ResultRecord, error) {
	var (
		rec       domain.ResultRecord
		roundsRaw []byte
		verified  sql.NullFloat64
	)
	if err := scan(
		&rec.ID,
		&rec.Participant.Name,
		&rec.Participant.StudentID,
		&rec.AutoScore,
		&roundsRaw,
		&verified,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(roundsRaw, &rec.Rounds); err != nil {
		return nil, fmt.Errorf("unmarshal rounds: %w", err)
	}
	if verified.Valid {
		v := verified.Float64
		rec.VerifiedScore = &v
	}
	return &rec, nil
}

func nullableScore(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
