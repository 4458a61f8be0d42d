package db

import (
	"context"
	"database/sql"

	"github.com/YannKr/countersignal/internal/model"
)

// Store binds the query functions to one database handle so components can
// take it as an injected dependency.
type Store struct {
	DB *sql.DB
}

func NewStore(database *sql.DB) *Store {
	return &Store{DB: database}
}

func (s *Store) CreateCampaign(ctx context.Context, c *model.Campaign, tokens []model.Token) error {
	return CreateCampaign(ctx, s.DB, c, tokens)
}

func (s *Store) UpdateTokenOutcome(ctx context.Context, t *model.Token) error {
	return UpdateTokenOutcome(ctx, s.DB, t)
}

func (s *Store) ResolveToken(ctx context.Context, value string) (*model.TokenContext, error) {
	return ResolveToken(ctx, s.DB, value)
}

func (s *Store) InsertHit(ctx context.Context, h *model.Hit) error {
	return InsertHit(ctx, s.DB, h)
}

func (s *Store) InsertRejectedLookup(ctx context.Context, r *model.RejectedLookup) error {
	return InsertRejectedLookup(ctx, s.DB, r)
}
