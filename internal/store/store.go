// Package store keeps the history of analyses in sqlite: one row per analysis,
// per band and per kept contour.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"depthrig-go/internal/segmentation"
	"depthrig-go/internal/types"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	*sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers anyway; one connection keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db}, nil
}

// NewRunID identifies one pipeline run.
func NewRunID() string {
	return uuid.NewString()
}

// Analysis summarizes one stored analysis.
type Analysis struct {
	ID            string
	RunID         string
	FrameSeq      int
	Kind          types.SourceKind
	Captured      time.Time
	AcceptedBands int
	Created       time.Time
}

// RecordAnalysis stores result for frame and returns the new analysis id.
func (s *Store) RecordAnalysis(ctx context.Context, runID string, frame types.Frame, result *segmentation.Result) (string, error) {
	id := uuid.NewString()
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (id, run_id, frame_seq, kind, captured_ns, accepted_bands, created_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, runID, frame.Seq, string(frame.Kind), unixNanos(frame.Captured), result.Accepted(), time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert analysis: %w", err)
	}

	for _, br := range result.Bands {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bands (analysis_id, lower, upper, pixel_count, accepted)
			VALUES (?, ?, ?, ?, ?)
		`, id, br.Band.Lower, br.Band.Upper, br.PixelCount, br.Accepted)
		if err != nil {
			return "", fmt.Errorf("failed to insert band %s: %w", br.Band, err)
		}
	}
	for _, rec := range result.Records() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO amplitudes (analysis_id, lower, upper, contour, amplitude)
			VALUES (?, ?, ?, ?, ?)
		`, id, rec.Band.Lower, rec.Band.Upper, rec.Contour, rec.Amplitude)
		if err != nil {
			return "", fmt.Errorf("failed to insert amplitude: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListAnalyses returns the analyses of runID, oldest first. An empty runID lists
// every run.
func (s *Store) ListAnalyses(ctx context.Context, runID string) ([]Analysis, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, run_id, frame_seq, kind, captured_ns, accepted_bands, created_ns
		FROM analyses
		WHERE ? = '' OR run_id = ?
		ORDER BY created_ns, rowid
	`, runID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		var a Analysis
		var kind string
		var captured, created int64
		if err := rows.Scan(&a.ID, &a.RunID, &a.FrameSeq, &kind, &captured, &a.AcceptedBands, &created); err != nil {
			return nil, err
		}
		a.Kind = types.SourceKind(kind)
		if captured != 0 {
			a.Captured = time.Unix(0, captured)
		}
		a.Created = time.Unix(0, created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Amplitudes returns the contour amplitudes of one analysis in band then contour order.
func (s *Store) Amplitudes(ctx context.Context, analysisID string) ([]segmentation.TaggedRecord, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT lower, upper, contour, amplitude
		FROM amplitudes
		WHERE analysis_id = ?
		ORDER BY lower, upper, contour
	`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []segmentation.TaggedRecord
	for rows.Next() {
		var rec segmentation.TaggedRecord
		if err := rows.Scan(&rec.Band.Lower, &rec.Band.Upper, &rec.Contour, &rec.Amplitude); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
