package ledger

import (
	"context"
	"reflect"
	"testing"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

func TestAttachTagNormalizes(t *testing.T) {
	h := newHarness()
	h.seedAccount("acc-1", "usr-1", 0)
	h.seedTransaction("txn-1", "acc-1", "usr-1", -10)

	tag, err := h.svc.AttachTag(context.Background(), "usr-1", "txn-1", "  Groceries ")
	if err != nil {
		t.Fatalf("AttachTag: %v", err)
	}
	if tag != "groceries" {
		t.Errorf("tag = %q, want %q", tag, "groceries")
	}

	// The normalized duplicate is a conflict, not a silent no-op.
	_, err = h.svc.AttachTag(context.Background(), "usr-1", "txn-1", "GROCERIES")
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("duplicate attach error = %v, want Conflict", err)
	}
}

func TestAttachTagEmptyAfterNormalization(t *testing.T) {
	h := newHarness()
	h.seedAccount("acc-1", "usr-1", 0)
	h.seedTransaction("txn-1", "acc-1", "usr-1", -10)

	_, err := h.svc.AttachTag(context.Background(), "usr-1", "txn-1", "   ")
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("error = %v, want Validation", err)
	}
}

func TestAttachTagRequiresEditor(t *testing.T) {
	h := newHarness()
	h.seedAccount("acc-1", "usr-1", 0)
	h.seedTransaction("txn-1", "acc-1", "usr-1", -10)
	h.gate.shares["acc-1/usr-2"] = models.LevelViewer

	_, err := h.svc.AttachTag(context.Background(), "usr-2", "txn-1", "lunch")
	if !apperr.IsKind(err, apperr.Forbidden) {
		t.Errorf("error = %v, want Forbidden", err)
	}
}

func TestDetachTag(t *testing.T) {
	h := newHarness()
	h.seedAccount("acc-1", "usr-1", 0)
	h.seedTransaction("txn-1", "acc-1", "usr-1", -10)
	h.state.tags["txn-1"] = map[string]bool{"lunch": true}

	if err := h.svc.DetachTag(context.Background(), "usr-1", "txn-1", " LUNCH "); err != nil {
		t.Fatalf("DetachTag: %v", err)
	}
	if err := h.svc.DetachTag(context.Background(), "usr-1", "txn-1", "lunch"); !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("second detach error = %v, want NotFound", err)
	}
}

func TestAccountTagsSkipDeletedTransactions(t *testing.T) {
	h := newHarness()
	h.seedAccount("acc-1", "usr-1", 0)
	h.seedTransaction("txn-1", "acc-1", "usr-1", -10)
	h.seedTransaction("txn-2", "acc-1", "usr-1", -5)
	h.state.tags["txn-1"] = map[string]bool{"food": true, "lunch": true}
	h.state.tags["txn-2"] = map[string]bool{"food": true}

	tags, err := h.svc.AccountTags(context.Background(), "usr-1", "acc-1")
	if err != nil {
		t.Fatalf("AccountTags: %v", err)
	}
	if want := []string{"food", "lunch"}; !reflect.DeepEqual(tags, want) {
		t.Errorf("tags = %v, want %v", tags, want)
	}

	counts, err := h.svc.AccountTagUsage(context.Background(), "usr-1", "acc-1")
	if err != nil {
		t.Fatalf("AccountTagUsage: %v", err)
	}
	want := []models.TagCount{{Tag: "food", Count: 2}, {Tag: "lunch", Count: 1}}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("counts = %v, want %v", counts, want)
	}

	// Tags of deleted transactions drop out of the account views.
	if err := h.svc.DeleteTransaction(context.Background(), "txn-1", "usr-1"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	tags, err = h.svc.AccountTags(context.Background(), "usr-1", "acc-1")
	if err != nil {
		t.Fatalf("AccountTags: %v", err)
	}
	if want := []string{"food"}; !reflect.DeepEqual(tags, want) {
		t.Errorf("tags after delete = %v, want %v", tags, want)
	}
}
