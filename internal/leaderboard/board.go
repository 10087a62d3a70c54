package leaderboard

import (
	"context"
	"strings"

	"techcharades/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyScores = "game:leaderboard"

// Board tracks the best final auto score per participant in a redis
// sorted set. Verified scores live only on the persisted records; the
// board is the quick public view.
type Board struct {
	rdb *redis.Client
}

type Entry struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func NewBoard(rdb *redis.Client) *Board {
	return &Board{rdb: rdb}
}

// Record keeps the participant's best score (GT: only improvements win).
func (b *Board) Record(ctx context.Context, p domain.Participant, score float64) error {
	return b.rdb.ZAddGT(ctx, keyScores, redis.Z{Score: score, Member: memberFor(p)}).Err()
}

// Top returns up to limit entries ordered by score descending.
func (b *Board) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	zs, err := b.rdb.ZRevRangeWithScores(ctx, keyScores, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		name, _ := z.Member.(string)
		if i := strings.LastIndex(name, "|"); i >= 0 {
			name = name[:i]
		}
		out = append(out, Entry{Name: name, Score: z.Score})
	}
	return out, nil
}

// memberFor disambiguates participants sharing a display name.
func memberFor(p domain.Participant) string {
	if p.StudentID == "" {
		return p.Name
	}
	return p.Name + "|" + p.StudentID
}
