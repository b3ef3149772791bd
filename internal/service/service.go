package service

import (
	"context"

	"github.com/immxrtalbeast/firext/internal/domain"
)

type RelayInteractor interface {
	Publish(ctx context.Context, req PublishRequest) error
	Poll(ctx context.Context, room, peerID string) (*domain.PollResult, error)
}
