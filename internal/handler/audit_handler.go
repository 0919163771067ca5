package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/middleware"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// AuditService defines the audit trail reads used by AuditHandler.
type AuditService interface {
	TransactionAuditTrail(ctx context.Context, actorID, transactionID string) ([]models.AuditEntry, error)
	AccountAuditTrail(ctx context.Context, actorID, accountID string) ([]models.AuditEntry, error)
}

type AuditHandler struct {
	svc AuditService
}

func NewAuditHandler(svc AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

func (h *AuditHandler) TransactionAudit(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	entries, err := h.svc.TransactionAuditTrail(c.Request.Context(), userID, c.Param("transactionId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *AuditHandler) AccountAudit(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	entries, err := h.svc.AccountAuditTrail(c.Request.Context(), userID, c.Param("accountId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
