package services

import (
	"context"
	"errors"
	"fmt"

	"mjolobid-backend/internal/config"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// ErrPushRejected marks a push the provider refused for good (bad token, bad topic)
var ErrPushRejected = errors.New("push rejected")

// PushSender delivers a mobile push notification
type PushSender interface {
	Push(ctx context.Context, deviceToken, title, body string, custom map[string]string) error
}

// APNsPusher sends pushes to iOS devices with token-based auth
type APNsPusher struct {
	client *apns2.Client
	topic  string
}

// NewAPNsPusher loads the .p8 signing key and builds an HTTP/2 client
func NewAPNsPusher(cfg config.APNsConfig) (*APNsPusher, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &APNsPusher{client: client, topic: cfg.Topic}, nil
}

func (p *APNsPusher) Push(ctx context.Context, deviceToken, title, body string, custom map[string]string) error {
	pl := payload.NewPayload().AlertTitle(title).AlertBody(body).Sound("default")
	for k, v := range custom {
		pl = pl.Custom(k, v)
	}

	res, err := p.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		Payload:     pl,
	})
	if err != nil {
		return fmt.Errorf("failed to push: %w", err)
	}
	if !res.Sent() {
		if res.StatusCode >= 500 || res.StatusCode == 429 {
			return fmt.Errorf("apns returned %d: %s", res.StatusCode, res.Reason)
		}
		return fmt.Errorf("%w: apns returned %d: %s", ErrPushRejected, res.StatusCode, res.Reason)
	}
	return nil
}
