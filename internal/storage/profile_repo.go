package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type ProfileRepo struct {
	db *DB
}

func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Ensure creates the profile row backing an authenticated (or demo) user if
// it does not exist yet. Papers and logs hang off this row.
func (r *ProfileRepo) Ensure(ctx context.Context, id uuid.UUID, email, fullName string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO profiles (id, email, full_name)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
  email = COALESCE(NULLIF(EXCLUDED.email, ''), profiles.email),
  full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), profiles.full_name)`,
		id, email, fullName)
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}
