package database_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/sahilchouksey/course-marketplace/database"
	"github.com/sahilchouksey/course-marketplace/database/dbtest"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSeeds_Idempotent(t *testing.T) {
	db := dbtest.Open(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, database.RunSeeds(db, log, 7))
	require.NoError(t, database.RunSeeds(db, log, 7))

	var courses []model.Course
	require.NoError(t, db.Find(&courses).Error)
	assert.Len(t, courses, 4)

	published := 0
	for _, c := range courses {
		assert.Equal(t, uint(7), c.InstructorID)
		assert.Positive(t, c.Price)
		if c.IsPublished() {
			published++
		}
	}
	assert.Equal(t, 3, published)
}

func TestGORMStore_HealthCheck(t *testing.T) {
	store := database.NewGORMStore(dbtest.Open(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, store.HealthCheck())
}
