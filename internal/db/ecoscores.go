package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gocql/gocql"
	"gopkg.in/inf.v0"
)

var ErrNoEcoScore = errors.New("no eco score recorded")

// StoreEcoScore records a report's score with two decimal places.
func (db *DB) StoreEcoScore(ctx context.Context, deviceID string, score float64, at time.Time) (err error) {
	ctx, span := startSpan(ctx, "StoreEcoScore")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	return db.Data.Query(`
INSERT INTO eco_scores (device_id, computed_at, score)
VALUES (?, ?, ?)
`, deviceID, at.UTC(), toDec(score)).WithContext(ctx).Exec()
}

// GetEcoScore returns the most recent score of a device.
func (db *DB) GetEcoScore(ctx context.Context, deviceID string) (score float64, at time.Time, err error) {
	ctx, span := startSpan(ctx, "GetEcoScore")
	defer func() { endSpan(span, err) }()
	defer observeRead("GetEcoScore", time.Now())

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	var dec *inf.Dec
	err = db.Data.Query(`
SELECT computed_at, score
FROM eco_scores
WHERE device_id = ?
LIMIT 1
`, deviceID).WithContext(ctx).Scan(&at, &dec)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return 0, time.Time{}, ErrNoEcoScore
		}
		return 0, time.Time{}, err
	}

	score, err = fromDec(dec)
	if err != nil {
		return 0, time.Time{}, err
	}
	return score, at, nil
}

func toDec(v float64) *inf.Dec {
	return inf.NewDec(int64(math.Round(v*100)), 2)
}

func fromDec(dec *inf.Dec) (float64, error) {
	if dec == nil {
		return 0, ErrNoEcoScore
	}
	v, err := strconv.ParseFloat(dec.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid score %q: %w", dec.String(), err)
	}
	return v, nil
}
