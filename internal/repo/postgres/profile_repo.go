package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
)

var ErrProfileNotFound = errors.New("profile not found")

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

const profileColumns = `user_id, gender, current_step, ad_count, first_name, username, phone, created_at, updated_at`

// Ensure lazily creates the profile on first contact and refreshes the
// display fields Telegram hands us with every update.
func (r *ProfileRepo) Ensure(ctx context.Context, userID int64, firstName, username string) (model.Profile, error) {
	if r.pool == nil {
		return model.Profile{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return model.Profile{}, fmt.Errorf("invalid user id")
	}

	const query = `
INSERT INTO profiles (user_id, gender, current_step, ad_count, first_name, username, phone, created_at, updated_at)
VALUES ($1, '', 'idle', 0, $2, $3, '', NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE SET
	first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), profiles.first_name),
	username = COALESCE(NULLIF(EXCLUDED.username, ''), profiles.username),
	updated_at = NOW()
RETURNING ` + profileColumns

	return scanProfile(r.pool.QueryRow(ctx, query, userID, firstName, username))
}

func (r *ProfileRepo) Get(ctx context.Context, userID int64) (model.Profile, error) {
	if r.pool == nil {
		return model.Profile{}, fmt.Errorf("postgres pool is nil")
	}

	profile, err := scanProfile(r.pool.QueryRow(ctx, `
SELECT `+profileColumns+`
FROM profiles
WHERE user_id = $1
LIMIT 1
`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Profile{}, ErrProfileNotFound
		}
		return model.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	return profile, nil
}

func (r *ProfileRepo) SetGender(ctx context.Context, userID int64, gender enums.Gender) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE profiles SET gender = $2, updated_at = NOW() WHERE user_id = $1
`, userID, string(gender)); err != nil {
		return fmt.Errorf("set profile gender: %w", err)
	}

	return nil
}

func (r *ProfileRepo) SetPhone(ctx context.Context, userID int64, phone string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE profiles SET phone = $2, updated_at = NOW() WHERE user_id = $1
`, userID, phone); err != nil {
		return fmt.Errorf("set profile phone: %w", err)
	}

	return nil
}

func (r *ProfileRepo) SetStep(ctx context.Context, userID int64, step enums.Step) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE profiles SET current_step = $2, updated_at = NOW() WHERE user_id = $1
`, userID, string(step)); err != nil {
		return fmt.Errorf("set profile step: %w", err)
	}

	return nil
}

// SetStepIf writes the step only while the stored value is still one of the
// expected ones; zero affected rows means a concurrent writer got there first.
func (r *ProfileRepo) SetStepIf(ctx context.Context, userID int64, next enums.Step, expected ...enums.Step) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if len(expected) == 0 {
		return false, fmt.Errorf("expected steps are required")
	}

	allowed := make([]string, 0, len(expected))
	for _, step := range expected {
		allowed = append(allowed, string(step))
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE profiles SET current_step = $2, updated_at = NOW()
WHERE user_id = $1 AND current_step = ANY($3)
`, userID, string(next), allowed)
	if err != nil {
		return false, fmt.Errorf("set profile step guarded: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *ProfileRepo) IncrementAdCount(ctx context.Context, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE profiles SET ad_count = ad_count + 1, updated_at = NOW() WHERE user_id = $1
`, userID); err != nil {
		return fmt.Errorf("increment ad count: %w", err)
	}

	return nil
}

func scanProfile(row pgx.Row) (model.Profile, error) {
	var (
		p      model.Profile
		gender string
		step   string
	)
	err := row.Scan(&p.UserID, &gender, &step, &p.AdCount, &p.FirstName, &p.Username, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Profile{}, err
	}
	p.Gender = enums.Gender(gender)
	p.CurrentStep = enums.Step(step)
	return p, nil
}
