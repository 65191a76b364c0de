// Package notify sends push notifications to a couple member's device.
package notify

import (
	"context"
	"fmt"

	"couple-todo-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// TokenSource looks up the profile that owns a push token
type TokenSource interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}

// Noop drops every notification
type Noop struct{}

// Notify does nothing
func (Noop) Notify(context.Context, string, string, string) error {
	return nil
}

// APNsConfig holds the token-based credentials for Apple push
type APNsConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// APNsNotifier delivers alerts through Apple Push Notification service
type APNsNotifier struct {
	client   *apns2.Client
	topic    string
	profiles TokenSource
}

// NewAPNsNotifier loads the .p8 signing key and creates a token client
func NewAPNsNotifier(cfg APNsConfig, profiles TokenSource) (*APNsNotifier, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	tok := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tok)
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsNotifier{
		client:   client,
		topic:    cfg.Topic,
		profiles: profiles,
	}, nil
}

// Notify sends an alert to userID. Users without a registered device are skipped.
func (n *APNsNotifier) Notify(ctx context.Context, userID, title, body string) error {
	profile, err := n.profiles.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get push token: %w", err)
	}
	if profile.PushToken == nil || *profile.PushToken == "" {
		log.Debug().Str("user_id", userID).Msg("No push token registered, skipping notification")
		return nil
	}

	notification := &apns2.Notification{
		DeviceToken: *profile.PushToken,
		Topic:       n.topic,
		Payload:     payload.NewPayload().AlertTitle(title).AlertBody(body).Sound("default"),
	}

	res, err := n.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push notification rejected: %d %s", res.StatusCode, res.Reason)
	}

	log.Info().Str("user_id", userID).Str("apns_id", res.ApnsID).Msg("Push notification sent")
	return nil
}
