package repository

import (
	"context"
	"errors"
	"fmt"

	"couple-todo-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CoupleRepository handles database operations for couples
type CoupleRepository struct {
	db *pgxpool.Pool
}

// NewCoupleRepository creates a new couple repository
func NewCoupleRepository(db *pgxpool.Pool) *CoupleRepository {
	return &CoupleRepository{db: db}
}

const coupleColumns = `code, creator_id, creator_email, creator_nickname, creator_photo_url,
	partner_id, partner_email, partner_nickname, partner_photo_url, created_at, updated_at`

// Create inserts a new couple and marks its creator in one transaction.
// Returns ErrCodeTaken when the code already exists.
func (r *CoupleRepository) Create(ctx context.Context, couple *models.Couple) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO couples (code, creator_id, creator_email, creator_nickname, creator_photo_url, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (code) DO NOTHING
		`
		result, err := tx.Exec(ctx, query,
			couple.Code, couple.CreatorID, couple.CreatorEmail, couple.CreatorNickname,
			couple.CreatorPhotoURL, couple.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create couple: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrCodeTaken
		}

		creator := models.CoupleMember{ID: couple.CreatorID, Email: couple.CreatorEmail}
		return setPairing(ctx, tx, creator, couple.Code, models.RoleCreator)
	})
}

// GetByCode retrieves a couple by code
func (r *CoupleRepository) GetByCode(ctx context.Context, code string) (*models.Couple, error) {
	query := `SELECT ` + coupleColumns + ` FROM couples WHERE code = $1`
	var c models.Couple
	err := r.db.QueryRow(ctx, query, code).Scan(
		&c.Code, &c.CreatorID, &c.CreatorEmail, &c.CreatorNickname, &c.CreatorPhotoURL,
		&c.PartnerID, &c.PartnerEmail, &c.PartnerNickname, &c.PartnerPhotoURL,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("couple %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get couple: %w", err)
	}
	return &c, nil
}

// Join claims the partner slot and records the pairing on the joiner's profile.
// The slot is re-checked inside the UPDATE so two concurrent joiners cannot both win.
func (r *CoupleRepository) Join(ctx context.Context, code string, partner models.CoupleMember) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE couples
			SET partner_id = $2, partner_email = $3, partner_nickname = $4, partner_photo_url = $5, updated_at = now()
			WHERE code = $1 AND partner_id IS NULL AND creator_id <> $2
		`
		result, err := tx.Exec(ctx, query, code, partner.ID, partner.Email, partner.Nickname, partner.PhotoURL)
		if err != nil {
			return fmt.Errorf("failed to claim partner slot: %w", err)
		}
		if result.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM couples WHERE code = $1)`, code).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check couple existence: %w", err)
			}
			if !exists {
				return fmt.Errorf("couple %s: %w", code, ErrNotFound)
			}
			return ErrSlotTaken
		}

		return setPairing(ctx, tx, partner, code, models.RolePartner)
	})
}
