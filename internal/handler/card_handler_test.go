package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/ledger"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

type stubCardService struct {
	createFn func(ctx context.Context, cmd ledger.CreateCardCommand) (*models.Card, error)
	listFn   func(ctx context.Context, actorID string) ([]models.Card, error)
}

func (s *stubCardService) CreateCard(ctx context.Context, cmd ledger.CreateCardCommand) (*models.Card, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubCardService) ListCards(ctx context.Context, actorID string) ([]models.Card, error) {
	return s.listFn(ctx, actorID)
}

type stubAuditService struct {
	transactionFn func(ctx context.Context, actorID, transactionID string) ([]models.AuditEntry, error)
	accountFn     func(ctx context.Context, actorID, accountID string) ([]models.AuditEntry, error)
}

func (s *stubAuditService) TransactionAuditTrail(ctx context.Context, actorID, transactionID string) ([]models.AuditEntry, error) {
	return s.transactionFn(ctx, actorID, transactionID)
}

func (s *stubAuditService) AccountAuditTrail(ctx context.Context, actorID, accountID string) ([]models.AuditEntry, error) {
	return s.accountFn(ctx, actorID, accountID)
}

func setupCardRouter(cards CardService, audit AuditService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userId", "usr-test")
		c.Next()
	})
	ch := NewCardHandler(cards)
	ah := NewAuditHandler(audit)
	router.POST("/v1/cards", ch.CreateCard)
	router.GET("/v1/cards", ch.ListCards)
	router.GET("/v1/accounts/:accountId/audit", ah.AccountAudit)
	router.GET("/v1/transactions/:transactionId/audit", ah.TransactionAudit)
	return router
}

func TestCreateCardHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "success",
			body:       `{"label":"Everyday debit","last4":"4421","cardType":"debit"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "last4 not numeric",
			body:       `{"label":"Everyday debit","last4":"44ab","cardType":"debit"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown card type",
			body:       `{"label":"Everyday debit","last4":"4421","cardType":"loyalty"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing label",
			body:       `{"last4":"4421","cardType":"credit"}`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			cards := &stubCardService{
				createFn: func(_ context.Context, cmd ledger.CreateCardCommand) (*models.Card, error) {
					called = true
					if cmd.OwnerID != "usr-test" {
						t.Errorf("ownerId = %s, want usr-test", cmd.OwnerID)
					}
					return &models.Card{ID: "card-1", Label: cmd.Label, Last4: cmd.Last4, CardType: cmd.CardType}, nil
				},
			}
			w := doJSON(setupCardRouter(cards, nil), http.MethodPost, "/v1/cards", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusCreated && called {
				t.Error("service called for invalid request")
			}
		})
	}
}

func TestListCardsHandlerEmpty(t *testing.T) {
	cards := &stubCardService{
		listFn: func(context.Context, string) ([]models.Card, error) { return nil, nil },
	}
	w := doJSON(setupCardRouter(cards, nil), http.MethodGet, "/v1/cards", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Cards []models.Card `json:"cards"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Cards == nil {
		t.Error("cards should marshal as an empty array, not null")
	}
}

func TestAuditHandlers(t *testing.T) {
	audit := &stubAuditService{
		transactionFn: func(_ context.Context, actorID, transactionID string) ([]models.AuditEntry, error) {
			if transactionID != "txn-1" {
				t.Errorf("transactionId = %s", transactionID)
			}
			return []models.AuditEntry{{ID: "aud-1", Action: "transaction.created"}}, nil
		},
		accountFn: func(_ context.Context, actorID, accountID string) ([]models.AuditEntry, error) {
			return nil, apperr.Newf(apperr.Forbidden, "user %s cannot view account %s", actorID, accountID)
		},
	}
	router := setupCardRouter(nil, audit)

	w := doJSON(router, http.MethodGet, "/v1/transactions/txn-1/audit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		Entries []models.AuditEntry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Action != "transaction.created" {
		t.Errorf("entries = %+v", resp.Entries)
	}

	w = doJSON(router, http.MethodGet, "/v1/accounts/acc-1/audit", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}
