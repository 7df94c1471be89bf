package apitoken

import (
	"context"
	"errors"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrForbidden     = errors.New("token lacks permission")
)

type DB interface {
	CreateToken(ctx context.Context, token Token) error
	GetToken(ctx context.Context, hash string) (Token, error)
	ListTokens(ctx context.Context) ([]Token, error)
	DeleteToken(ctx context.Context, tokenID string) error
}
