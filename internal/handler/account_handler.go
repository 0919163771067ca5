package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/ledger"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/middleware"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// AccountService defines the account operations used by AccountHandler.
type AccountService interface {
	CreateAccount(ctx context.Context, cmd ledger.CreateAccountCommand) (*models.Account, error)
	GetAccount(ctx context.Context, actorID, accountID string) (*models.Account, error)
	ListAccounts(ctx context.Context, actorID string) ([]models.Account, error)
	UpdateAccount(ctx context.Context, cmd ledger.UpdateAccountCommand) (*models.Account, error)
	DeleteAccount(ctx context.Context, actorID, accountID string) error
	ShareAccount(ctx context.Context, actorID, accountID, userID string, level models.PermissionLevel) error
	VerifyBalance(ctx context.Context, actorID, accountID string) (*ledger.BalanceCheck, error)
	AccountTags(ctx context.Context, actorID, accountID string) ([]string, error)
	AccountTagUsage(ctx context.Context, actorID, accountID string) ([]models.TagCount, error)
}

type AccountHandler struct {
	svc AccountService
}

func NewAccountHandler(svc AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

type CreateAccountRequest struct {
	Name           string          `json:"name" validate:"required"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

// UpdateAccountRequest distinguishes omitted fields from supplied ones, so a
// PATCH only touches what the caller sent.
type UpdateAccountRequest struct {
	Name     models.Patch[string]
	IsActive models.Patch[bool]
}

func (r *UpdateAccountRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["name"]; ok {
		var name string
		if err := json.Unmarshal(v, &name); err != nil {
			return err
		}
		r.Name = models.SetTo(name)
	}
	if v, ok := raw["isActive"]; ok {
		var active bool
		if err := json.Unmarshal(v, &active); err != nil {
			return err
		}
		r.IsActive = models.SetTo(active)
	}
	return nil
}

type ShareAccountRequest struct {
	UserID string `json:"userId" validate:"required"`
	Level  string `json:"level" validate:"required,oneof=viewer editor owner"`
}

type ListAccountsResponse struct {
	Accounts []models.Account `json:"accounts"`
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	account, err := h.svc.CreateAccount(c.Request.Context(), ledger.CreateAccountCommand{
		OwnerID:        userID,
		Name:           req.Name,
		Currency:       req.Currency,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	accounts, err := h.svc.ListAccounts(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	c.JSON(http.StatusOK, ListAccountsResponse{Accounts: accounts})
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	account, err := h.svc.GetAccount(c.Request.Context(), userID, c.Param("accountId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.svc.UpdateAccount(c.Request.Context(), ledger.UpdateAccountCommand{
		AccountID: c.Param("accountId"),
		ActorID:   userID,
		Name:      req.Name,
		IsActive:  req.IsActive,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	if err := h.svc.DeleteAccount(c.Request.Context(), userID, c.Param("accountId")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) ShareAccount(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req ShareAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	level, _ := models.ParsePermissionLevel(req.Level)
	if err := h.svc.ShareAccount(c.Request.Context(), userID, c.Param("accountId"), req.UserID, level); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) VerifyBalance(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	check, err := h.svc.VerifyBalance(c.Request.Context(), userID, c.Param("accountId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *AccountHandler) ListTags(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	accountID := c.Param("accountId")

	if c.Query("counts") == "true" {
		counts, err := h.svc.AccountTagUsage(c.Request.Context(), userID, accountID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		if counts == nil {
			counts = []models.TagCount{}
		}
		c.JSON(http.StatusOK, gin.H{"tags": counts})
		return
	}

	tags, err := h.svc.AccountTags(c.Request.Context(), userID, accountID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}
