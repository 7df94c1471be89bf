package database

import (
	"context"
	"fmt"

	"github.com/alex65536/tourney/internal/apitoken"
)

func (d *DB) CreateToken(ctx context.Context, token apitoken.Token) error {
	if err := d.db.WithContext(ctx).Create(&token).Error; err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (d *DB) GetToken(ctx context.Context, hash string) (apitoken.Token, error) {
	var tokens []apitoken.Token
	err := d.db.WithContext(ctx).Where("hash = ?", hash).Limit(1).Find(&tokens).Error
	if err != nil {
		return apitoken.Token{}, fmt.Errorf("get token: %w", err)
	}
	if len(tokens) == 0 {
		return apitoken.Token{}, apitoken.ErrTokenNotFound
	}
	return tokens[0], nil
}

func (d *DB) ListTokens(ctx context.Context) ([]apitoken.Token, error) {
	var tokens []apitoken.Token
	if err := d.db.WithContext(ctx).Order("created_at").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return tokens, nil
}

func (d *DB) DeleteToken(ctx context.Context, tokenID string) error {
	res := d.db.WithContext(ctx).Where("id = ?", tokenID).Delete(&apitoken.Token{})
	if res.Error != nil {
		return fmt.Errorf("delete token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apitoken.ErrTokenNotFound
	}
	return nil
}
