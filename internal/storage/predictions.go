package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/digito/internal/classify"
)

// Prediction is one stored classification.
type Prediction struct {
	ID             int64                 `json:"id"`
	Filename       string                `json:"filename,omitempty"`
	ImagePath      string                `json:"imagePath,omitempty"`
	Digit          int                   `json:"digit"`
	Confidence     float64               `json:"confidence"`
	AllPredictions []classify.Prediction `json:"allPredictions"`
	Empty          bool                  `json:"empty"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// NewPrediction builds a record from a classification result.
func NewPrediction(res classify.Result, empty bool, filename, imagePath string) *Prediction {
	return &Prediction{
		Filename:       filename,
		ImagePath:      imagePath,
		Digit:          res.Digit,
		Confidence:     res.Confidence,
		AllPredictions: res.AllPredictions,
		Empty:          empty,
	}
}

// PredictionRepository queries the predictions table.
type PredictionRepository struct {
	db *sql.DB
}

// Insert stores p, filling ID and CreatedAt.
func (r *PredictionRepository) Insert(ctx context.Context, p *Prediction) error {
	probs, err := json.Marshal(p.AllPredictions)
	if err != nil {
		return fmt.Errorf("failed to encode probabilities: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO predictions (filename, image_path, digit, confidence, probabilities, empty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.Filename, p.ImagePath, p.Digit, p.Confidence, string(probs), p.Empty, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

const selectColumns = `SELECT id, filename, image_path, digit, confidence, probabilities, empty, created_at FROM predictions`

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(s scanner) (*Prediction, error) {
	var (
		p     Prediction
		probs string
	)
	if err := s.Scan(&p.ID, &p.Filename, &p.ImagePath, &p.Digit, &p.Confidence, &probs, &p.Empty, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(probs), &p.AllPredictions); err != nil {
		return nil, fmt.Errorf("failed to decode probabilities for %d: %w", p.ID, err)
	}
	return &p, nil
}

// GetByID returns one prediction or ErrNotFound.
func (r *PredictionRepository) GetByID(ctx context.Context, id int64) (*Prediction, error) {
	p, err := scanPrediction(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// List returns predictions newest first.
func (r *PredictionRepository) List(ctx context.Context, limit, offset int) ([]Prediction, error) {
	query := selectColumns + ` ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Count returns the number of stored predictions.
func (r *PredictionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return n, nil
}

// DigitHistogram returns how often each digit was predicted, indexed by digit.
func (r *PredictionRepository) DigitHistogram(ctx context.Context) ([classify.NumClasses]int, error) {
	var hist [classify.NumClasses]int
	rows, err := r.db.QueryContext(ctx, `SELECT digit, COUNT(*) FROM predictions GROUP BY digit`)
	if err != nil {
		return hist, fmt.Errorf("failed to query histogram: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var digit, n int
		if err := rows.Scan(&digit, &n); err != nil {
			return hist, fmt.Errorf("failed to scan histogram: %w", err)
		}
		if digit >= 0 && digit < classify.NumClasses {
			hist[digit] = n
		}
	}
	return hist, rows.Err()
}

// DeleteOlderThan removes predictions created before cutoff and returns how
// many were deleted.
func (r *PredictionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM predictions WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete predictions: %w", err)
	}
	return res.RowsAffected()
}
