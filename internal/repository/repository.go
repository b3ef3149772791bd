package repository

import (
	"context"

	"github.com/immxrtalbeast/firext/internal/domain"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, code string) (*domain.Room, error)
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]*domain.Room, error)
	Count(ctx context.Context) (int, error)
}
