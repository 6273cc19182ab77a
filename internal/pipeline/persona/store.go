// Package persona owns the stored interest profile and its resolution into
// service-compatible signal identifiers.
package persona

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tastemate/internal/common/database"
	"tastemate/internal/common/logger"
	"tastemate/internal/models"
)

// Store reads and writes interest records in PostgreSQL. Deletion is not a
// pipeline concern and has no method here.
type Store struct {
	db     *database.PostgresClient
	logger logger.Logger
}

func NewStore(db *database.PostgresClient, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.With(map[string]interface{}{"component": "interest-store"}),
	}
}

// ReadAll returns every interest on a profile.
func (s *Store) ReadAll(ctx context.Context, profileID string) ([]models.Interest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, profile_id, name, category, confidence, COALESCE(resolved_signal_id, ''), source, created_at, updated_at
		FROM interests
		WHERE profile_id = $1
		ORDER BY created_at`, profileID)
	if err != nil {
		return nil, fmt.Errorf("read interests: %w", err)
	}
	defer rows.Close()

	var interests []models.Interest
	for rows.Next() {
		var it models.Interest
		var category string
		if err := rows.Scan(&it.ID, &it.ProfileID, &it.Name, &category, &it.Confidence,
			&it.ResolvedSignalID, &it.Source, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan interest: %w", err)
		}
		it.Category = models.Category(category)
		interests = append(interests, it)
	}
	return interests, rows.Err()
}

// SaveResolvedSignal writes a resolved identifier onto an interest. Write-once:
// an already resolved interest is left untouched, which makes the call
// idempotent by interest id.
func (s *Store) SaveResolvedSignal(ctx context.Context, interestID, signalID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE interests
		SET resolved_signal_id = $2, updated_at = $3
		WHERE id = $1 AND (resolved_signal_id IS NULL OR resolved_signal_id = '')`,
		interestID, signalID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save resolved signal: %w", err)
	}
	return nil
}

// Append stores a new interest, deduplicating on case-insensitive name within
// the profile. Confidence is clamped into [0,1] before the write.
func (s *Store) Append(ctx context.Context, interest models.Interest) error {
	if interest.ID == "" {
		interest.ID = uuid.NewString()
	}
	interest.SetConfidence(interest.Confidence)
	now := time.Now().UTC()

	result, err := s.db.Exec(ctx, `
		INSERT INTO interests (id, profile_id, name, category, confidence, source, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM interests WHERE profile_id = $2 AND LOWER(name) = LOWER($3)
		)`,
		interest.ID, interest.ProfileID, interest.Name, string(interest.Category),
		interest.Confidence, string(interest.Source), now)
	if err != nil {
		return fmt.Errorf("append interest: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("interest already present, skipped", map[string]interface{}{
			"profileId": interest.ProfileID,
			"name":      interest.Name,
		})
	}
	return nil
}

// UpdateLocation stores the most recently detected location on the profile.
func (s *Store) UpdateLocation(ctx context.Context, profileID, city string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE profiles SET location = $2, updated_at = $3 WHERE id = $1`,
		profileID, city, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update profile location: %w", err)
	}
	return nil
}
