package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"couple-todo-backend/internal/models"
	"couple-todo-backend/internal/repository"
	"couple-todo-backend/internal/roles"

	"github.com/rs/zerolog/log"
)

const (
	codeLength      = 6
	codeChars       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts = 10
)

// CoupleService handles the pairing registry
type CoupleService struct {
	couples  CoupleStore
	profiles ProfileStore
	notifier Notifier
	newCode  func() string
	now      func() time.Time
}

// NewCoupleService creates a new couple service
func NewCoupleService(couples CoupleStore, profiles ProfileStore, notifier Notifier) *CoupleService {
	return &CoupleService{
		couples:  couples,
		profiles: profiles,
		notifier: notifier,
		newCode:  generateCode,
		now:      time.Now,
	}
}

// generateCode generates a random 6-character code
func generateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}

// NormalizeCode trims and uppercases a user supplied code
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// GenerateCode creates a couple with the caller in the creator slot. A caller
// who already created a couple that is still waiting gets that couple back.
func (s *CoupleService) GenerateCode(ctx context.Context, identity models.Identity) (*models.Couple, error) {
	profile, err := s.profiles.Ensure(ctx, identity)
	if err != nil {
		return nil, storeError("ensure profile", err)
	}

	if existing, err := s.currentCouple(ctx, profile); err != nil {
		return nil, err
	} else if existing != nil {
		if !existing.Available() {
			return nil, fmt.Errorf("user %s: %w", identity.ID, ErrAlreadyPaired)
		}
		if existing.CreatorID == identity.ID {
			return existing, nil
		}
	}

	nickname := profile.Nickname
	if nickname == "" {
		nickname = roles.DefaultNickname
	}
	email := profile.Email
	if email == "" {
		email = identity.Email
	}

	for i := 0; i < maxCodeAttempts; i++ {
		couple := &models.Couple{
			Code:            s.newCode(),
			CreatorID:       identity.ID,
			CreatorEmail:    email,
			CreatorNickname: nickname,
			CreatorPhotoURL: profile.PhotoURL,
			CreatedAt:       s.now(),
		}
		couple.UpdatedAt = couple.CreatedAt

		err := s.couples.Create(ctx, couple)
		if errors.Is(err, repository.ErrCodeTaken) {
			log.Warn().Str("couple_code", couple.Code).Msg("Couple code collision, retrying")
			continue
		}
		if err != nil {
			return nil, storeError("create couple", err)
		}

		log.Info().Str("user_id", identity.ID).Str("couple_code", couple.Code).Msg("Couple created")
		return couple, nil
	}

	return nil, fmt.Errorf("failed to generate unique code after %d attempts: %w", maxCodeAttempts, ErrStorage)
}

// JoinWithCode claims the partner slot of the couple identified by raw.
// The slot is re-checked by the store at write time, so a concurrent joiner
// that loses the race also gets ErrAlreadyPaired.
func (s *CoupleService) JoinWithCode(ctx context.Context, identity models.Identity, raw string) (*models.Couple, error) {
	code := NormalizeCode(raw)
	if code == "" {
		return nil, validationError("code is required")
	}

	couple, err := s.couples.GetByCode(ctx, code)
	if err != nil {
		return nil, storeError("get couple", err)
	}
	if !couple.Available() {
		return nil, fmt.Errorf("couple %s: %w", code, ErrAlreadyPaired)
	}
	if couple.CreatorID == identity.ID {
		return nil, fmt.Errorf("couple %s: %w", code, ErrSelfPairing)
	}

	profile, err := s.profiles.Ensure(ctx, identity)
	if err != nil {
		return nil, storeError("ensure profile", err)
	}
	if current, err := s.currentCouple(ctx, profile); err != nil {
		return nil, err
	} else if current != nil && !current.Available() {
		return nil, fmt.Errorf("user %s: %w", identity.ID, ErrAlreadyPaired)
	}

	member := models.CoupleMember{
		ID:       identity.ID,
		Email:    profile.Email,
		Nickname: profile.Nickname,
		PhotoURL: profile.PhotoURL,
	}
	if member.Email == "" {
		member.Email = identity.Email
	}
	if member.Nickname == "" {
		member.Nickname = roles.DefaultNickname
	}

	if err := s.couples.Join(ctx, code, member); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, fmt.Errorf("couple %s: %w", code, ErrAlreadyPaired)
		}
		return nil, storeError("join couple", err)
	}

	joined, err := s.couples.GetByCode(ctx, code)
	if err != nil {
		return nil, storeError("get couple", err)
	}

	log.Info().Str("user_id", identity.ID).Str("couple_code", code).Msg("Couple joined")

	if err := s.notifier.Notify(ctx, joined.CreatorID, "Partner joined", member.Nickname+" joined your couple"); err != nil {
		log.Error().Err(err).Str("user_id", joined.CreatorID).Msg("Failed to notify creator")
	}

	return joined, nil
}

// LookupCouple is a read-only fetch by code
func (s *CoupleService) LookupCouple(ctx context.Context, raw string) (*models.Couple, error) {
	code := NormalizeCode(raw)
	if code == "" {
		return nil, validationError("code is required")
	}
	couple, err := s.couples.GetByCode(ctx, code)
	if err != nil {
		return nil, storeError("get couple", err)
	}
	return couple, nil
}

// CoupleForUser returns the caller's profile and couple. The couple is nil
// while the user is unpaired.
func (s *CoupleService) CoupleForUser(ctx context.Context, userID string) (*models.Profile, *models.Couple, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, storeError("get profile", err)
	}
	couple, err := s.currentCouple(ctx, profile)
	if err != nil {
		return nil, nil, err
	}
	return profile, couple, nil
}

// Labels resolves the assignee labels for userID against their current couple
func (s *CoupleService) Labels(ctx context.Context, userID string) (roles.LabelSet, error) {
	profile, couple, err := s.CoupleForUser(ctx, userID)
	if err != nil {
		return roles.LabelSet{}, err
	}
	return roles.Resolve(profile, couple), nil
}

func (s *CoupleService) currentCouple(ctx context.Context, profile *models.Profile) (*models.Couple, error) {
	if profile.CoupleCode == nil || *profile.CoupleCode == "" {
		return nil, nil
	}
	couple, err := s.couples.GetByCode(ctx, *profile.CoupleCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("get couple", err)
	}
	if !couple.HasMember(profile.ID) {
		return nil, nil
	}
	return couple, nil
}
