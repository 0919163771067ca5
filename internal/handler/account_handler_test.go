package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/ledger"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

type stubAccountService struct {
	createFn   func(ctx context.Context, cmd ledger.CreateAccountCommand) (*models.Account, error)
	getFn      func(ctx context.Context, actorID, accountID string) (*models.Account, error)
	listFn     func(ctx context.Context, actorID string) ([]models.Account, error)
	updateFn   func(ctx context.Context, cmd ledger.UpdateAccountCommand) (*models.Account, error)
	deleteFn   func(ctx context.Context, actorID, accountID string) error
	shareFn    func(ctx context.Context, actorID, accountID, userID string, level models.PermissionLevel) error
	verifyFn   func(ctx context.Context, actorID, accountID string) (*ledger.BalanceCheck, error)
	tagsFn     func(ctx context.Context, actorID, accountID string) ([]string, error)
	tagUsageFn func(ctx context.Context, actorID, accountID string) ([]models.TagCount, error)
}

func (s *stubAccountService) CreateAccount(ctx context.Context, cmd ledger.CreateAccountCommand) (*models.Account, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubAccountService) GetAccount(ctx context.Context, actorID, accountID string) (*models.Account, error) {
	return s.getFn(ctx, actorID, accountID)
}

func (s *stubAccountService) ListAccounts(ctx context.Context, actorID string) ([]models.Account, error) {
	return s.listFn(ctx, actorID)
}

func (s *stubAccountService) UpdateAccount(ctx context.Context, cmd ledger.UpdateAccountCommand) (*models.Account, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubAccountService) DeleteAccount(ctx context.Context, actorID, accountID string) error {
	return s.deleteFn(ctx, actorID, accountID)
}

func (s *stubAccountService) ShareAccount(ctx context.Context, actorID, accountID, userID string, level models.PermissionLevel) error {
	return s.shareFn(ctx, actorID, accountID, userID, level)
}

func (s *stubAccountService) VerifyBalance(ctx context.Context, actorID, accountID string) (*ledger.BalanceCheck, error) {
	return s.verifyFn(ctx, actorID, accountID)
}

func (s *stubAccountService) AccountTags(ctx context.Context, actorID, accountID string) ([]string, error) {
	return s.tagsFn(ctx, actorID, accountID)
}

func (s *stubAccountService) AccountTagUsage(ctx context.Context, actorID, accountID string) ([]models.TagCount, error) {
	return s.tagUsageFn(ctx, actorID, accountID)
}

func setupAccountRouter(svc AccountService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userId", "usr-test")
		c.Next()
	})
	h := NewAccountHandler(svc)
	router.POST("/v1/accounts", h.CreateAccount)
	router.GET("/v1/accounts", h.ListAccounts)
	router.GET("/v1/accounts/:accountId", h.GetAccount)
	router.PATCH("/v1/accounts/:accountId", h.UpdateAccount)
	router.DELETE("/v1/accounts/:accountId", h.DeleteAccount)
	router.POST("/v1/accounts/:accountId/shares", h.ShareAccount)
	router.GET("/v1/accounts/:accountId/balance/verify", h.VerifyBalance)
	router.GET("/v1/accounts/:accountId/tags", h.ListTags)
	return router
}

func sampleAccount() *models.Account {
	return &models.Account{
		ID:             "acc-1",
		OwnerID:        "usr-test",
		Name:           "Checking",
		Currency:       "EUR",
		OpeningBalance: decimal.NewFromInt(100),
		CurrentBalance: decimal.NewFromInt(80),
		IsActive:       true,
	}
}

func TestCreateAccountHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "success",
			body:       `{"name":"Checking","currency":"EUR","openingBalance":100}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing name",
			body:       `{"currency":"EUR"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "currency wrong length",
			body:       `{"name":"Checking","currency":"EURO"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "duplicate name",
			body:       `{"name":"Checking","currency":"EUR"}`,
			serviceErr: apperr.New(apperr.Conflict, "account named \"Checking\" already exists"),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unsupported currency",
			body:       `{"name":"Checking","currency":"ZZZ"}`,
			serviceErr: apperr.New(apperr.Validation, "unsupported currency"),
			wantStatus: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubAccountService{
				createFn: func(_ context.Context, cmd ledger.CreateAccountCommand) (*models.Account, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					if cmd.OwnerID != "usr-test" {
						t.Errorf("ownerID = %s, want usr-test", cmd.OwnerID)
					}
					return sampleAccount(), nil
				},
			}
			w := doJSON(setupAccountRouter(svc), http.MethodPost, "/v1/accounts", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestUpdateAccountHandlerPatchSemantics(t *testing.T) {
	var got ledger.UpdateAccountCommand
	svc := &stubAccountService{
		updateFn: func(_ context.Context, cmd ledger.UpdateAccountCommand) (*models.Account, error) {
			got = cmd
			return sampleAccount(), nil
		},
	}
	router := setupAccountRouter(svc)

	w := doJSON(router, http.MethodPatch, "/v1/accounts/acc-1", `{"isActive":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	if !got.IsActive.Set || got.IsActive.Value {
		t.Errorf("isActive patch = %+v, want set to false", got.IsActive)
	}
	if got.Name.Set {
		t.Error("name set although the body omitted it")
	}

	w = doJSON(router, http.MethodPatch, "/v1/accounts/acc-1", `{"name":"Renamed"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !got.Name.Set || got.Name.Value != "Renamed" {
		t.Errorf("name patch = %+v", got.Name)
	}
	if got.IsActive.Set {
		t.Error("isActive set although the body omitted it")
	}
}

func TestShareAccountHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantLevel  models.PermissionLevel
	}{
		{name: "viewer grant", body: `{"userId":"usr-2","level":"viewer"}`, wantStatus: http.StatusNoContent, wantLevel: models.LevelViewer},
		{name: "editor grant", body: `{"userId":"usr-2","level":"editor"}`, wantStatus: http.StatusNoContent, wantLevel: models.LevelEditor},
		{name: "unknown level", body: `{"userId":"usr-2","level":"root"}`, wantStatus: http.StatusBadRequest},
		{name: "missing user", body: `{"level":"viewer"}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLevel models.PermissionLevel
			svc := &stubAccountService{
				shareFn: func(_ context.Context, actorID, accountID, userID string, level models.PermissionLevel) error {
					gotLevel = level
					return nil
				},
			}
			w := doJSON(setupAccountRouter(svc), http.MethodPost, "/v1/accounts/acc-1/shares", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusNoContent && gotLevel != tt.wantLevel {
				t.Errorf("level = %v, want %v", gotLevel, tt.wantLevel)
			}
		})
	}
}

func TestVerifyBalanceHandler(t *testing.T) {
	svc := &stubAccountService{
		verifyFn: func(_ context.Context, actorID, accountID string) (*ledger.BalanceCheck, error) {
			return &ledger.BalanceCheck{
				AccountID:       accountID,
				CachedBalance:   decimal.NewFromInt(80),
				ComputedBalance: decimal.NewFromInt(75),
				Consistent:      false,
			}, nil
		},
	}
	w := doJSON(setupAccountRouter(svc), http.MethodGet, "/v1/accounts/acc-1/balance/verify", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var check ledger.BalanceCheck
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if check.Consistent || !check.ComputedBalance.Equal(decimal.NewFromInt(75)) {
		t.Errorf("check = %+v", check)
	}
}

func TestListAccountTagsHandler(t *testing.T) {
	svc := &stubAccountService{
		tagsFn: func(_ context.Context, actorID, accountID string) ([]string, error) {
			return []string{"food", "lunch"}, nil
		},
		tagUsageFn: func(_ context.Context, actorID, accountID string) ([]models.TagCount, error) {
			return []models.TagCount{{Tag: "food", Count: 3}}, nil
		},
	}
	router := setupAccountRouter(svc)

	w := doJSON(router, http.MethodGet, "/v1/accounts/acc-1/tags", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"food"`) {
		t.Errorf("plain list: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodGet, "/v1/accounts/acc-1/tags?counts=true", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":3`) {
		t.Errorf("usage list: status %d body %s", w.Code, w.Body.String())
	}
}

func TestListAccountsHandlerEmpty(t *testing.T) {
	svc := &stubAccountService{
		listFn: func(_ context.Context, actorID string) ([]models.Account, error) {
			return nil, nil
		},
	}
	w := doJSON(setupAccountRouter(svc), http.MethodGet, "/v1/accounts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"accounts":[]`) {
		t.Errorf("nil account list not normalized: %s", w.Body.String())
	}
}
