package repository

import (
	"context"
	"errors"
	"fmt"

	"couple-todo-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProfileRepository handles database operations for identity records
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, email, nickname, couple_code, role, photo_url, push_token, created_at, updated_at`

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	var role string
	err := row.Scan(
		&p.ID, &p.Email, &p.Nickname, &p.CoupleCode, &role,
		&p.PhotoURL, &p.PushToken, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	if !p.Role.Valid() {
		return nil, fmt.Errorf("profile %s has unknown role %q", p.ID, role)
	}
	return &p, nil
}

// GetByID retrieves a profile by identity ID
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// Ensure creates the profile on first sight and returns the stored record
func (r *ProfileRepository) Ensure(ctx context.Context, identity models.Identity) (*models.Profile, error) {
	query := `
		INSERT INTO profiles (id, email, photo_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, identity.ID, identity.Email, identity.PhotoURL); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return r.GetByID(ctx, identity.ID)
}

// UpdateNickname sets the nickname and mirrors it into the slot of the current couple
func (r *ProfileRepository) UpdateNickname(ctx context.Context, id, nickname string) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			`UPDATE profiles SET nickname = $1, updated_at = now() WHERE id = $2`, nickname, id)
		if err != nil {
			return fmt.Errorf("failed to update nickname: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}

		_, err = tx.Exec(ctx, `
			UPDATE couples SET
				creator_nickname = CASE WHEN creator_id = $2 THEN $1 ELSE creator_nickname END,
				partner_nickname = CASE WHEN partner_id = $2 THEN $1 ELSE partner_nickname END,
				updated_at = now()
			WHERE code = (SELECT couple_code FROM profiles WHERE id = $2)
		`, nickname, id)
		if err != nil {
			return fmt.Errorf("failed to propagate nickname: %w", err)
		}
		return nil
	})
}

// UpdatePhoto sets the profile photo and mirrors it into the slot of the current couple
func (r *ProfileRepository) UpdatePhoto(ctx context.Context, id, photoURL string) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			`UPDATE profiles SET photo_url = $1, updated_at = now() WHERE id = $2`, photoURL, id)
		if err != nil {
			return fmt.Errorf("failed to update photo: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}

		_, err = tx.Exec(ctx, `
			UPDATE couples SET
				creator_photo_url = CASE WHEN creator_id = $2 THEN $1 ELSE creator_photo_url END,
				partner_photo_url = CASE WHEN partner_id = $2 THEN $1 ELSE partner_photo_url END,
				updated_at = now()
			WHERE code = (SELECT couple_code FROM profiles WHERE id = $2)
		`, photoURL, id)
		if err != nil {
			return fmt.Errorf("failed to propagate photo: %w", err)
		}
		return nil
	})
}

// UpdatePushToken updates the push token for a user
func (r *ProfileRepository) UpdatePushToken(ctx context.Context, id string, pushToken *string) error {
	query := `UPDATE profiles SET push_token = $1, updated_at = now() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, pushToken, id)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return nil
}

// setPairing records the couple on the member's profile, creating it if needed
func setPairing(ctx context.Context, q querier, member models.CoupleMember, code string, role models.Role) error {
	query := `
		INSERT INTO profiles (id, email, couple_code, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			couple_code = EXCLUDED.couple_code,
			role = EXCLUDED.role,
			email = CASE WHEN profiles.email = '' THEN EXCLUDED.email ELSE profiles.email END,
			updated_at = now()
	`
	if _, err := q.Exec(ctx, query, member.ID, member.Email, code, string(role)); err != nil {
		return fmt.Errorf("failed to set pairing on profile: %w", err)
	}
	return nil
}
