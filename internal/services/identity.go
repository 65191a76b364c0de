package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"couple-todo-backend/internal/blob"
	"couple-todo-backend/internal/imageproc"
	"couple-todo-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const jwtExpDays = 365

// IdentityService handles identity records and token validation
type IdentityService struct {
	profiles  ProfileStore
	blobs     blob.Store
	images    imageproc.Options
	jwtSecret string
	now       func() time.Time
}

// NewIdentityService creates a new identity service
func NewIdentityService(profiles ProfileStore, blobs blob.Store, images imageproc.Options, jwtSecret string) *IdentityService {
	return &IdentityService{
		profiles:  profiles,
		blobs:     blobs,
		images:    images,
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
}

// GenerateJWT signs a token carrying the identity claims
func (s *IdentityService) GenerateJWT(identity models.Identity) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": identity.ID,
		"email":   identity.Email,
		"exp":     now.AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     now.Unix(),
	}
	if identity.PhotoURL != nil {
		claims["photo_url"] = *identity.PhotoURL
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a token issued by the identity provider and returns its identity
func (s *IdentityService) ValidateJWT(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return models.Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return models.Identity{}, fmt.Errorf("user_id not found in token")
	}

	identity := models.Identity{ID: userID}
	identity.Email, _ = claims["email"].(string)
	if photo, ok := claims["photo_url"].(string); ok && photo != "" {
		identity.PhotoURL = &photo
	}
	return identity, nil
}

// EnsureProfile returns the caller's profile, creating it on first sight
func (s *IdentityService) EnsureProfile(ctx context.Context, identity models.Identity) (*models.Profile, error) {
	profile, err := s.profiles.Ensure(ctx, identity)
	if err != nil {
		return nil, storeError("ensure profile", err)
	}
	return profile, nil
}

// GetProfile retrieves a profile by identity id
func (s *IdentityService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, storeError("get profile", err)
	}
	return profile, nil
}

// UpdateNickname validates and stores a nickname. The couple record picks it
// up in the same write so labels resolve to the new name immediately.
func (s *IdentityService) UpdateNickname(ctx context.Context, identity models.Identity, nickname string) (*models.Profile, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, validationError("nickname is required")
	}
	if utf8.RuneCountInString(nickname) > models.MaxNicknameLength {
		return nil, validationError("nickname must be at most %d characters", models.MaxNicknameLength)
	}

	if _, err := s.EnsureProfile(ctx, identity); err != nil {
		return nil, err
	}
	if err := s.profiles.UpdateNickname(ctx, identity.ID, nickname); err != nil {
		return nil, storeError("update nickname", err)
	}

	log.Info().Str("user_id", identity.ID).Msg("Nickname updated")
	return s.GetProfile(ctx, identity.ID)
}

// UpdatePhoto downscales and uploads a profile photo, then stores its URL
func (s *IdentityService) UpdatePhoto(ctx context.Context, identity models.Identity, name string, data []byte) (*models.Profile, error) {
	if len(data) == 0 {
		return nil, validationError("photo is required")
	}

	resized, err := imageproc.Downscale(data, s.images)
	if err != nil {
		return nil, validationError("%v", err)
	}

	if _, err := s.EnsureProfile(ctx, identity); err != nil {
		return nil, err
	}

	storagePath := fmt.Sprintf("profileImages/%s/%d_%s", identity.ID, s.now().UnixMilli(), cleanName(name))
	if err := s.blobs.Upload(ctx, storagePath, resized, imageproc.ContentType); err != nil {
		return nil, storeError("upload profile photo", err)
	}
	url, err := s.blobs.DownloadURL(ctx, storagePath)
	if err != nil {
		return nil, storeError("resolve profile photo url", err)
	}
	if err := s.profiles.UpdatePhoto(ctx, identity.ID, url); err != nil {
		return nil, storeError("update profile photo", err)
	}

	return s.GetProfile(ctx, identity.ID)
}

// RegisterPushToken stores the device token used for notifications. An empty token clears it.
func (s *IdentityService) RegisterPushToken(ctx context.Context, identity models.Identity, pushToken string) error {
	if _, err := s.EnsureProfile(ctx, identity); err != nil {
		return err
	}

	var tok *string
	if pushToken = strings.TrimSpace(pushToken); pushToken != "" {
		tok = &pushToken
	}
	if err := s.profiles.UpdatePushToken(ctx, identity.ID, tok); err != nil {
		return storeError("update push token", err)
	}
	return nil
}

// cleanName keeps only the last path element of a client supplied file name
func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image.jpg"
	}
	return name
}
