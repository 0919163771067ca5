package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/ledger"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/middleware"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// TransactionService defines the ledger operations used by
// TransactionHandler.
type TransactionService interface {
	CreateTransaction(ctx context.Context, cmd ledger.CreateTransactionCommand) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, cmd ledger.UpdateTransactionCommand) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID, actorID string) error
	SplitTransaction(ctx context.Context, cmd ledger.SplitTransactionCommand) ([]models.Transaction, error)
	JoinTransaction(ctx context.Context, transactionID, actorID string) (*models.Transaction, error)
	GetTransaction(ctx context.Context, actorID, transactionID string) (*models.Transaction, error)
	SearchTransactions(ctx context.Context, actorID, accountID string, f ledger.SearchFilters, p ledger.Page) ([]models.Transaction, int, error)
	ChildrenOf(ctx context.Context, actorID, transactionID string) ([]models.Transaction, error)
	AttachTag(ctx context.Context, actorID, transactionID, tag string) (string, error)
	DetachTag(ctx context.Context, actorID, transactionID, tag string) error
	TransactionTags(ctx context.Context, actorID, transactionID string) ([]string, error)
}

type TransactionHandler struct {
	svc TransactionService
}

func NewTransactionHandler(svc TransactionService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

type CreateTransactionRequest struct {
	TransactionDate string          `json:"transactionDate" validate:"required"`
	ValueDate       *string         `json:"valueDate"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	Description     string          `json:"description" validate:"required"`
	Merchant        *string         `json:"merchant"`
	Type            string          `json:"type" validate:"required"`
	CardID          *string         `json:"cardId"`
	Notes           *string         `json:"notes"`
}

// UpdateTransactionRequest records which fields the caller actually sent.
// "cardId": null clears the card reference; omitting cardId leaves it alone.
type UpdateTransactionRequest struct {
	Amount          models.Patch[decimal.Decimal]
	TransactionDate models.Patch[time.Time]
	ValueDate       models.Patch[*time.Time]
	Description     models.Patch[string]
	Merchant        models.Patch[*string]
	Type            models.Patch[string]
	CardID          models.Patch[*string]
	Notes           models.Patch[*string]

	invalid string
}

func (r *UpdateTransactionRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["amount"]; ok {
		var d decimal.Decimal
		if err := json.Unmarshal(v, &d); err != nil {
			return err
		}
		r.Amount = models.SetTo(d)
	}
	if v, ok := raw["transactionDate"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		t, ok := parseDate(s)
		if !ok {
			r.invalid = "transactionDate"
			return nil
		}
		r.TransactionDate = models.SetTo(t)
	}
	if v, ok := raw["valueDate"]; ok {
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		if s == nil {
			r.ValueDate = models.SetTo[*time.Time](nil)
		} else {
			t, ok := parseDate(*s)
			if !ok {
				r.invalid = "valueDate"
				return nil
			}
			r.ValueDate = models.SetTo(&t)
		}
	}
	if v, ok := raw["description"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		r.Description = models.SetTo(s)
	}
	for key, dst := range map[string]*models.Patch[*string]{
		"merchant": &r.Merchant,
		"cardId":   &r.CardID,
		"notes":    &r.Notes,
	} {
		if v, ok := raw[key]; ok {
			var s *string
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			*dst = models.SetTo(s)
		}
	}
	if v, ok := raw["type"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		r.Type = models.SetTo(s)
	}
	return nil
}

type SplitPartRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required"`
	Merchant    *string         `json:"merchant"`
	Notes       *string         `json:"notes"`
}

type SplitTransactionRequest struct {
	Splits []SplitPartRequest `json:"splits" validate:"required,min=2,dive"`
}

type AttachTagRequest struct {
	Tag string `json:"tag" validate:"required"`
}

type ListTransactionsResponse struct {
	Transactions []models.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	accountID := c.Param("accountId")

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	txnDate, ok := parseDate(req.TransactionDate)
	if !ok {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid transactionDate, expected YYYY-MM-DD")
		return
	}
	var valueDate *time.Time
	if req.ValueDate != nil {
		v, ok := parseDate(*req.ValueDate)
		if !ok {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid valueDate, expected YYYY-MM-DD")
			return
		}
		valueDate = &v
	}

	txn, err := h.svc.CreateTransaction(c.Request.Context(), ledger.CreateTransactionCommand{
		AccountID:   accountID,
		ActorID:     userID,
		TxnDate:     txnDate,
		ValueDate:   valueDate,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Merchant:    req.Merchant,
		Type:        req.Type,
		CardID:      req.CardID,
		Notes:       req.Notes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	accountID := c.Param("accountId")

	filters, page, errMsg := parseSearchQuery(c)
	if errMsg != "" {
		middleware.RespondWithError(c, http.StatusBadRequest, errMsg)
		return
	}

	txns, total, err := h.svc.SearchTransactions(c.Request.Context(), userID, accountID, filters, page)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: txns, Total: total})
}

// parseSearchQuery reads the AND-composed filters from the query string.
func parseSearchQuery(c *gin.Context) (ledger.SearchFilters, ledger.Page, string) {
	var f ledger.SearchFilters
	if s := c.Query("from"); s != "" {
		t, ok := parseDate(s)
		if !ok {
			return f, ledger.Page{}, "Invalid from date, expected YYYY-MM-DD"
		}
		f.DateFrom = &t
	}
	if s := c.Query("to"); s != "" {
		t, ok := parseDate(s)
		if !ok {
			return f, ledger.Page{}, "Invalid to date, expected YYYY-MM-DD"
		}
		f.DateTo = &t
	}
	if s := c.Query("minAmount"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return f, ledger.Page{}, "Invalid minAmount"
		}
		f.AmountMin = &d
	}
	if s := c.Query("maxAmount"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return f, ledger.Page{}, "Invalid maxAmount"
		}
		f.AmountMax = &d
	}
	if s := c.Query("type"); s != "" {
		f.Type = &s
	}
	if s := c.Query("cardId"); s != "" {
		f.CardID = &s
	}
	if s := c.Query("cardType"); s != "" {
		f.CardType = &s
	}
	f.Text = c.Query("q")

	page := ledger.Page{Limit: 50}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			return f, page, "Invalid limit"
		}
		page.Limit = n
	}
	if s := c.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, page, "Invalid offset"
		}
		page.Offset = n
	}
	return f, page, ""
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	txn, err := h.svc.GetTransaction(c.Request.Context(), userID, c.Param("transactionId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.invalid != "" {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid "+req.invalid+", expected YYYY-MM-DD")
		return
	}

	txn, err := h.svc.UpdateTransaction(c.Request.Context(), ledger.UpdateTransactionCommand{
		TransactionID: c.Param("transactionId"),
		ActorID:       userID,
		Amount:        req.Amount,
		TxnDate:       req.TransactionDate,
		ValueDate:     req.ValueDate,
		Description:   req.Description,
		Merchant:      req.Merchant,
		Type:          req.Type,
		CardID:        req.CardID,
		Notes:         req.Notes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	if err := h.svc.DeleteTransaction(c.Request.Context(), c.Param("transactionId"), userID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TransactionHandler) SplitTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req SplitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	splits := make([]ledger.SplitItem, len(req.Splits))
	for i, part := range req.Splits {
		splits[i] = ledger.SplitItem{
			Amount:      part.Amount,
			Description: part.Description,
			Merchant:    part.Merchant,
			Notes:       part.Notes,
		}
	}
	children, err := h.svc.SplitTransaction(c.Request.Context(), ledger.SplitTransactionCommand{
		TransactionID: c.Param("transactionId"),
		ActorID:       userID,
		Splits:        splits,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"children": children})
}

func (h *TransactionHandler) JoinTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	parent, err := h.svc.JoinTransaction(c.Request.Context(), c.Param("transactionId"), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, parent)
}

func (h *TransactionHandler) ListChildren(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	children, err := h.svc.ChildrenOf(c.Request.Context(), userID, c.Param("transactionId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if children == nil {
		children = []models.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"children": children})
}

func (h *TransactionHandler) AttachTag(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req AttachTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	tag, err := h.svc.AttachTag(c.Request.Context(), userID, c.Param("transactionId"), req.Tag)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tag": tag})
}

func (h *TransactionHandler) DetachTag(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	if err := h.svc.DetachTag(c.Request.Context(), userID, c.Param("transactionId"), c.Param("tag")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TransactionHandler) ListTransactionTags(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	tags, err := h.svc.TransactionTags(c.Request.Context(), userID, c.Param("transactionId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}
