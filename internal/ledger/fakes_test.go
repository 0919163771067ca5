package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// fakeState is an in-memory stand-in for the database. fakeRunner gives each
// unit of work a deep copy and swaps it in only on success, so rollback
// semantics match the real TxRunner.
type fakeState struct {
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction
	tags         map[string]map[string]bool
	cardTypes    map[string]string
	audit        []models.AuditEntry

	failAudit bool
}

func newFakeState() *fakeState {
	return &fakeState{
		accounts:     map[string]*models.Account{},
		transactions: map[string]*models.Transaction{},
		tags:         map[string]map[string]bool{},
		cardTypes:    map[string]string{},
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	c.failAudit = s.failAudit
	for id, a := range s.accounts {
		cp := *a
		c.accounts[id] = &cp
	}
	for id, t := range s.transactions {
		cp := *t
		c.transactions[id] = &cp
	}
	for id, set := range s.tags {
		cp := map[string]bool{}
		for tag := range set {
			cp[tag] = true
		}
		c.tags[id] = cp
	}
	for id, ct := range s.cardTypes {
		c.cardTypes[id] = ct
	}
	c.audit = append(c.audit, s.audit...)
	return c
}

func fakeStores(s *fakeState) Stores {
	return Stores{
		Accounts:     &fakeAccountLedger{s: s},
		Transactions: &fakeTransactionStore{s: s},
		Tags:         &fakeTagIndex{s: s},
		Audit:        &fakeAuditRecorder{s: s},
	}
}

// fakeRunner serializes units of work with a mutex, mirroring the row-lock
// serialization the real database provides.
type fakeRunner struct {
	mu sync.Mutex
	s  *fakeState
}

func (r *fakeRunner) InTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.s.clone()
	if err := fn(ctx, fakeStores(work)); err != nil {
		return err
	}
	*r.s = *work
	return nil
}

type fakeAccountLedger struct{ s *fakeState }

func (f *fakeAccountLedger) Insert(_ context.Context, a *models.Account) error {
	cp := *a
	f.s.accounts[a.ID] = &cp
	return nil
}

func (f *fakeAccountLedger) Get(_ context.Context, id string, includeDeleted bool) (*models.Account, error) {
	a, ok := f.s.accounts[id]
	if !ok || (!includeDeleted && a.DeletedAt != nil) {
		return nil, apperr.Newf(apperr.NotFound, "account %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountLedger) FindByOwnerAndName(_ context.Context, ownerID, name string) (*models.Account, error) {
	for _, a := range f.s.accounts {
		if a.OwnerID == ownerID && strings.EqualFold(a.Name, name) && a.DeletedAt == nil {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountLedger) ListForUser(_ context.Context, userID string) ([]models.Account, error) {
	var out []models.Account
	for _, a := range f.s.accounts {
		if a.OwnerID == userID && a.DeletedAt == nil {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAccountLedger) LockForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return f.Get(ctx, id, false)
}

func (f *fakeAccountLedger) SetBalance(_ context.Context, id string, balance decimal.Decimal) error {
	a, ok := f.s.accounts[id]
	if !ok {
		return apperr.Newf(apperr.NotFound, "account %s not found", id)
	}
	a.CurrentBalance = balance
	return nil
}

func (f *fakeAccountLedger) Update(_ context.Context, a *models.Account) error {
	if _, ok := f.s.accounts[a.ID]; !ok {
		return apperr.Newf(apperr.NotFound, "account %s not found", a.ID)
	}
	cp := *a
	f.s.accounts[a.ID] = &cp
	return nil
}

func (f *fakeAccountLedger) SoftDelete(_ context.Context, id string) error {
	a, ok := f.s.accounts[id]
	if !ok || a.DeletedAt != nil {
		return apperr.Newf(apperr.NotFound, "account %s not found", id)
	}
	now := time.Now().UTC()
	a.DeletedAt = &now
	return nil
}

type fakeTransactionStore struct{ s *fakeState }

func (f *fakeTransactionStore) Insert(_ context.Context, t *models.Transaction) error {
	cp := *t
	f.s.transactions[t.ID] = &cp
	return nil
}

func (f *fakeTransactionStore) Get(_ context.Context, id string, includeDeleted bool) (*models.Transaction, error) {
	t, ok := f.s.transactions[id]
	if !ok || (!includeDeleted && t.DeletedAt != nil) {
		return nil, apperr.Newf(apperr.NotFound, "transaction %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTransactionStore) Update(_ context.Context, t *models.Transaction) error {
	if _, ok := f.s.transactions[t.ID]; !ok {
		return apperr.Newf(apperr.NotFound, "transaction %s not found", t.ID)
	}
	cp := *t
	f.s.transactions[t.ID] = &cp
	return nil
}

func (f *fakeTransactionStore) SoftDelete(_ context.Context, id, actorID string) error {
	t, ok := f.s.transactions[id]
	if !ok || t.DeletedAt != nil {
		return apperr.Newf(apperr.NotFound, "transaction %s not found", id)
	}
	now := time.Now().UTC()
	t.DeletedAt = &now
	t.UpdatedBy = actorID
	return nil
}

func (f *fakeTransactionStore) SoftDeleteChildren(_ context.Context, parentID, actorID string) (int, error) {
	now := time.Now().UTC()
	count := 0
	for _, t := range f.s.transactions {
		if t.ParentID != nil && *t.ParentID == parentID && t.DeletedAt == nil {
			t.DeletedAt = &now
			t.UpdatedBy = actorID
			count++
		}
	}
	return count, nil
}

func (f *fakeTransactionStore) Children(_ context.Context, parentID string, includeDeleted bool) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range f.s.transactions {
		if t.ParentID != nil && *t.ParentID == parentID && (includeDeleted || t.DeletedAt == nil) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTransactionStore) HasChildren(ctx context.Context, parentID string) (bool, error) {
	children, err := f.Children(ctx, parentID, false)
	return len(children) > 0, err
}

func (f *fakeTransactionStore) ParentOf(ctx context.Context, childID string, includeDeleted bool) (*models.Transaction, error) {
	child, err := f.Get(ctx, childID, includeDeleted)
	if err != nil {
		return nil, err
	}
	if child.ParentID == nil {
		return nil, nil
	}
	return f.Get(ctx, *child.ParentID, includeDeleted)
}

func (f *fakeTransactionStore) Search(_ context.Context, accountID string, filt SearchFilters, p Page) ([]models.Transaction, int, error) {
	var matched []models.Transaction
	for _, t := range f.s.transactions {
		if t.AccountID != accountID || t.DeletedAt != nil {
			continue
		}
		if filt.DateFrom != nil && t.TxnDate.Before(*filt.DateFrom) {
			continue
		}
		if filt.DateTo != nil && t.TxnDate.After(*filt.DateTo) {
			continue
		}
		if filt.AmountMin != nil && t.Amount.LessThan(*filt.AmountMin) {
			continue
		}
		if filt.AmountMax != nil && t.Amount.GreaterThan(*filt.AmountMax) {
			continue
		}
		if filt.Type != nil && t.Type != *filt.Type {
			continue
		}
		if filt.CardID != nil && (t.CardID == nil || *t.CardID != *filt.CardID) {
			continue
		}
		if filt.CardType != nil {
			if t.CardID == nil || f.s.cardTypes[*t.CardID] != *filt.CardType {
				continue
			}
		}
		if filt.Text != "" {
			q := strings.ToLower(filt.Text)
			desc := strings.ToLower(t.Description)
			merch := ""
			if t.Merchant != nil {
				merch = strings.ToLower(*t.Merchant)
			}
			if !strings.Contains(desc, q) && !strings.Contains(merch, q) {
				continue
			}
		}
		matched = append(matched, *t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].TxnDate.Equal(matched[j].TxnDate) {
			return matched[i].TxnDate.After(matched[j].TxnDate)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if p.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[p.Offset:]
	if p.Limit > 0 && p.Limit < len(matched) {
		matched = matched[:p.Limit]
	}
	return matched, total, nil
}

func (f *fakeTransactionStore) RecomputeBalance(_ context.Context, accountID string, asOf *time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range f.s.transactions {
		if t.AccountID != accountID || t.DeletedAt != nil || t.ParentID != nil {
			continue
		}
		if asOf != nil && t.TxnDate.After(*asOf) {
			continue
		}
		sum = sum.Add(t.Amount)
	}
	return sum, nil
}

type fakeTagIndex struct{ s *fakeState }

func (f *fakeTagIndex) Attach(_ context.Context, transactionID, tag string) error {
	set := f.s.tags[transactionID]
	if set == nil {
		set = map[string]bool{}
		f.s.tags[transactionID] = set
	}
	if set[tag] {
		return apperr.Newf(apperr.Conflict, "tag %q already attached", tag)
	}
	set[tag] = true
	return nil
}

func (f *fakeTagIndex) Detach(_ context.Context, transactionID, tag string) (bool, error) {
	set := f.s.tags[transactionID]
	if !set[tag] {
		return false, nil
	}
	delete(set, tag)
	return true, nil
}

func (f *fakeTagIndex) TagsFor(_ context.Context, transactionID string) ([]string, error) {
	var out []string
	for tag := range f.s.tags[transactionID] {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeTagIndex) DistinctTags(_ context.Context, accountID string) ([]string, error) {
	seen := map[string]bool{}
	for txnID, set := range f.s.tags {
		t, ok := f.s.transactions[txnID]
		if !ok || t.AccountID != accountID || t.DeletedAt != nil {
			continue
		}
		for tag := range set {
			seen[tag] = true
		}
	}
	var out []string
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeTagIndex) UsageCounts(_ context.Context, accountID string) ([]models.TagCount, error) {
	counts := map[string]int{}
	for txnID, set := range f.s.tags {
		t, ok := f.s.transactions[txnID]
		if !ok || t.AccountID != accountID || t.DeletedAt != nil {
			continue
		}
		for tag := range set {
			counts[tag]++
		}
	}
	out := make([]models.TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, models.TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

type fakeAuditRecorder struct{ s *fakeState }

func (f *fakeAuditRecorder) Log(_ context.Context, e *models.AuditEntry) error {
	if f.s.failAudit {
		return errors.New("audit write failed")
	}
	cp := *e
	cp.CreatedAt = time.Now().UTC()
	f.s.audit = append(f.s.audit, cp)
	return nil
}

func (f *fakeAuditRecorder) ListForEntity(_ context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	for _, e := range f.s.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeShareStore struct {
	shares map[string]models.PermissionLevel // accountID + "/" + userID
}

func (f *fakeShareStore) Upsert(_ context.Context, s *models.AccountShare) error {
	if f.shares == nil {
		f.shares = map[string]models.PermissionLevel{}
	}
	f.shares[s.AccountID+"/"+s.UserID] = s.Level
	return nil
}

// fakeGate resolves permissions against the state's account owners plus an
// explicit share table and admin set.
type fakeGate struct {
	s      *fakeState
	shares map[string]models.PermissionLevel
	admins map[string]bool
}

func (g *fakeGate) Check(_ context.Context, actorID, accountID string, required models.PermissionLevel) (bool, error) {
	if a, ok := g.s.accounts[accountID]; ok && a.OwnerID == actorID {
		return true, nil
	}
	level, ok := g.shares[accountID+"/"+actorID]
	if !ok {
		return false, nil
	}
	return level.Covers(required), nil
}

func (g *fakeGate) IsAdmin(_ context.Context, actorID string) (bool, error) {
	return g.admins[actorID], nil
}

type fakeCardDirectory struct {
	cards map[string]*models.Card // cardID -> card, Resolve checks owner
}

func (f *fakeCardDirectory) Insert(_ context.Context, c *models.Card) error {
	cp := *c
	f.cards[c.ID] = &cp
	return nil
}

func (f *fakeCardDirectory) Resolve(_ context.Context, cardID, actorID string) (*models.Card, error) {
	card, ok := f.cards[cardID]
	if !ok || card.OwnerID != actorID {
		return nil, nil
	}
	cp := *card
	return &cp, nil
}

func (f *fakeCardDirectory) ListForUser(_ context.Context, userID string) ([]models.Card, error) {
	var out []models.Card
	for _, c := range f.cards {
		if c.OwnerID == userID && c.DeletedAt == nil {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeCurrencyCatalog struct{ unsupported map[string]bool }

func (f *fakeCurrencyCatalog) IsSupported(code string) bool { return !f.unsupported[code] }

type publishedEvent struct {
	Stream string
	Type   string
	Data   any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Stream: stream, Type: eventType, Data: data})
	return nil
}

func (f *fakePublisher) byType(eventType string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeCache struct {
	mu      sync.Mutex
	set     map[string]*models.Account
	deleted []string
}

func (f *fakeCache) Set(_ context.Context, key string, value *models.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set == nil {
		f.set = map[string]*models.Account{}
	}
	f.set[key] = value
}

func (f *fakeCache) Delete(_ context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
}
