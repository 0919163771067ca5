package ledger

import (
	"context"
	"time"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/utils"
)

type CreateCardCommand struct {
	OwnerID  string
	Label    string
	Last4    string
	CardType string
}

// CreateCard registers a payment card for the actor. Cards are personal;
// there is no sharing model for them.
func (s *Service) CreateCard(ctx context.Context, cmd CreateCardCommand) (*models.Card, error) {
	now := time.Now().UTC()
	card := &models.Card{
		ID:        utils.GenerateID("card"),
		OwnerID:   cmd.OwnerID,
		Label:     cmd.Label,
		Last4:     cmd.Last4,
		CardType:  cmd.CardType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.cards.Insert(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// ListCards returns the actor's non-deleted cards.
func (s *Service) ListCards(ctx context.Context, actorID string) ([]models.Card, error) {
	return s.cards.ListForUser(ctx, actorID)
}
