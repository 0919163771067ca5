package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/ledger"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/middleware"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// CardService defines the card operations used by CardHandler.
type CardService interface {
	CreateCard(ctx context.Context, cmd ledger.CreateCardCommand) (*models.Card, error)
	ListCards(ctx context.Context, actorID string) ([]models.Card, error)
}

type CardHandler struct {
	svc CardService
}

func NewCardHandler(svc CardService) *CardHandler {
	return &CardHandler{svc: svc}
}

type CreateCardRequest struct {
	Label    string `json:"label" validate:"required"`
	Last4    string `json:"last4" validate:"required,len=4,numeric"`
	CardType string `json:"cardType" validate:"required,oneof=debit credit prepaid"`
}

func (h *CardHandler) CreateCard(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req CreateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	card, err := h.svc.CreateCard(c.Request.Context(), ledger.CreateCardCommand{
		OwnerID:  userID,
		Label:    req.Label,
		Last4:    req.Last4,
		CardType: req.CardType,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (h *CardHandler) ListCards(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	cards, err := h.svc.ListCards(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if cards == nil {
		cards = []models.Card{}
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards})
}
