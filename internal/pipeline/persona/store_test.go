package persona

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tastemate/internal/common/database"
	"tastemate/internal/common/logger"
	"tastemate/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(&database.PostgresClient{DB: db}, logger.NewZapAdapter(zaptest.NewLogger(t)))
	return store, mock
}

// ==========================
// ReadAll Tests
// ==========================

func TestStore_ReadAll(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "profile_id", "name", "category", "confidence", "resolved_signal_id", "source", "created_at", "updated_at",
	}).
		AddRow("int-1", "profile-1", "italian food", "place", 0.9, "urn:entity:abc", "explicit", now, now).
		AddRow("int-2", "profile-1", "jazz", "", 0.5, "", "inferred", now, now)

	mock.ExpectQuery(`SELECT id, profile_id, name, category`).
		WithArgs("profile-1").
		WillReturnRows(rows)

	interests, err := store.ReadAll(context.Background(), "profile-1")
	require.NoError(t, err)
	require.Len(t, interests, 2)

	assert.Equal(t, "italian food", interests[0].Name)
	assert.Equal(t, models.CategoryPlace, interests[0].Category)
	assert.Equal(t, "urn:entity:abc", interests[0].ResolvedSignalID)
	assert.Equal(t, models.SourceExplicit, interests[0].Source)

	assert.Equal(t, "jazz", interests[1].Name)
	assert.Empty(t, interests[1].ResolvedSignalID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReadAll_QueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, profile_id, name, category`).
		WithArgs("profile-1").
		WillReturnError(assert.AnError)

	interests, err := store.ReadAll(context.Background(), "profile-1")
	assert.Error(t, err)
	assert.Nil(t, interests)
}

// ==========================
// SaveResolvedSignal Tests
// ==========================

func TestStore_SaveResolvedSignal_WriteOnce(t *testing.T) {
	store, mock := newMockStore(t)

	// The guard clause restricts the update to unresolved rows, so a second
	// save with a different identifier matches zero rows.
	mock.ExpectExec(`UPDATE interests\s+SET resolved_signal_id`).
		WithArgs("int-1", "urn:entity:abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE interests\s+SET resolved_signal_id`).
		WithArgs("int-1", "urn:entity:other", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.SaveResolvedSignal(context.Background(), "int-1", "urn:entity:abc"))
	assert.NoError(t, store.SaveResolvedSignal(context.Background(), "int-1", "urn:entity:other"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Append Tests
// ==========================

func TestStore_Append(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO interests`).
		WithArgs(sqlmock.AnyArg(), "profile-1", "horror movies", "movie", 0.8, "explicit", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Append(context.Background(), models.Interest{
		ProfileID:  "profile-1",
		Name:       "horror movies",
		Category:   models.CategoryMovie,
		Confidence: 0.8,
		Source:     models.SourceExplicit,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Append_DuplicateSkipped(t *testing.T) {
	store, mock := newMockStore(t)

	// Zero rows affected means the case-insensitive dedup matched an
	// existing name. The call still succeeds.
	mock.ExpectExec(`INSERT INTO interests`).
		WithArgs(sqlmock.AnyArg(), "profile-1", "Horror Movies", "movie", 0.8, "explicit", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Append(context.Background(), models.Interest{
		ProfileID:  "profile-1",
		Name:       "Horror Movies",
		Category:   models.CategoryMovie,
		Confidence: 0.8,
		Source:     models.SourceExplicit,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Append_ClampsConfidence(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO interests`).
		WithArgs(sqlmock.AnyArg(), "profile-1", "jazz", "", 1.0, "inferred", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Append(context.Background(), models.Interest{
		ProfileID:  "profile-1",
		Name:       "jazz",
		Confidence: 3.5,
		Source:     models.SourceInferred,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// UpdateLocation Tests
// ==========================

func TestStore_UpdateLocation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE profiles SET location`).
		WithArgs("profile-1", "Paris", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.UpdateLocation(context.Background(), "profile-1", "Paris"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
