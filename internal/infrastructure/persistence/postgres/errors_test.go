package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolationHelpers(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: constraintHashedStudentID})
	other := &pgconn.PgError{Code: "23503", ConstraintName: "fk"}

	assert.True(t, IsUniqueViolation(dup))
	assert.Equal(t, constraintHashedStudentID, ViolatedConstraint(dup))

	assert.False(t, IsUniqueViolation(other))
	assert.Equal(t, "", ViolatedConstraint(other))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("boom")))
}

func TestMigrations_OrderedAndConstrained(t *testing.T) {
	migs := GetMigrations()
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
	}

	all := migs[0].UpSQL + migs[1].UpSQL
	for _, c := range []string{"exams_pkey", "accounts_pkey", constraintHashedStudentID, "remaining_attempts >= 0"} {
		assert.True(t, strings.Contains(all, c), c)
	}
}
