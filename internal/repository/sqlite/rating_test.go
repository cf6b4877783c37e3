package sqlite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sakif/skillbarter/internal/apperror"
	"github.com/sakif/skillbarter/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRating_AtMostOnce(t *testing.T) {
	db := newTestDB(t)
	rater := createTestUser(t, db, "alice")
	ratee := createTestUser(t, db, "bob")
	ctx := context.Background()

	err := db.CreateRating(ctx, &model.Rating{RaterID: rater.ID, RateeID: ratee.ID, Value: 4})
	require.NoError(t, err)

	found, err := db.GetUserByID(ctx, ratee.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.RateCount)
	assert.Equal(t, 4, found.RateValue)

	err = db.CreateRating(ctx, &model.Rating{RaterID: rater.ID, RateeID: ratee.ID, Value: 1})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	found, err = db.GetUserByID(ctx, ratee.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.RateCount, "a rejected rating must not touch the aggregates")
	assert.Equal(t, 4, found.RateValue)
}

func TestCreateRating_ConcurrentSamePair(t *testing.T) {
	db := newTestDB(t)
	rater := createTestUser(t, db, "alice")
	ratee := createTestUser(t, db, "bob")
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.CreateRating(ctx, &model.Rating{RaterID: rater.ID, RateeID: ratee.ID, Value: 5})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, apperror.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("CreateRating() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(9), conflicts.Load())

	found, err := db.GetUserByID(ctx, ratee.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.RateCount)
	assert.Equal(t, 5, found.RateValue)
}

func TestCreateRating_AggregatesAcrossRaters(t *testing.T) {
	db := newTestDB(t)
	ratee := createTestUser(t, db, "bob")
	ctx := context.Background()

	for i, name := range []string{"r1", "r2", "r3"} {
		rater := createTestUser(t, db, name)
		require.NoError(t, db.CreateRating(ctx, &model.Rating{RaterID: rater.ID, RateeID: ratee.ID, Value: i + 2}))
	}

	found, err := db.GetUserByID(ctx, ratee.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.RateCount)
	assert.Equal(t, 2+3+4, found.RateValue)
	assert.Equal(t, 3.0, found.AverageRating())
}

func TestFindRating(t *testing.T) {
	db := newTestDB(t)
	rater := createTestUser(t, db, "alice")
	ratee := createTestUser(t, db, "bob")
	ctx := context.Background()

	_, err := db.FindRating(ctx, rater.ID, ratee.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, db.CreateRating(ctx, &model.Rating{RaterID: rater.ID, RateeID: ratee.ID, Value: 3}))

	r, err := db.FindRating(ctx, rater.ID, ratee.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Value)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	// Direction matters: bob has not rated alice.
	_, err = db.FindRating(ctx, ratee.ID, rater.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateRating_UnknownRatee(t *testing.T) {
	db := newTestDB(t)
	rater := createTestUser(t, db, "alice")

	err := db.CreateRating(context.Background(), &model.Rating{RaterID: rater.ID, RateeID: "missing", Value: 3})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
