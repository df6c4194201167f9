package member

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("member not found")

	ErrUpdateConflict = errors.New("update conflict detected")
)

type Repository interface {
	Save(ctx context.Context, member *Member) error

	FindByID(ctx context.Context, memberID int64) (*Member, error)

	FindByCardNumber(ctx context.Context, cardNumber string) (*Member, error)

	SetBan(ctx context.Context, memberID int64, cause string) error

	ClearBan(ctx context.Context, memberID int64) error
}
