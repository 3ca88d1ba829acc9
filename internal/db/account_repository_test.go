package db

import (
	"context"
	"errors"
	"testing"

	"github.com/tOgg1/fedistream/internal/models"
)

func strPtr(s string) *string { return &s }

func TestAccountRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db)
	ctx := context.Background()

	first := &models.Account{
		BaseURL:     "https://mastodon.social",
		ClientID:    "cid",
		AccessToken: strPtr("token-1"),
	}
	second := &models.Account{
		BaseURL:  "https://pleroma.example",
		Username: "alice",
	}

	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create first failed: %v", err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create second failed: %v", err)
	}
	if first.ID == "" || first.Domain != "mastodon.social" {
		t.Fatalf("expected generated id and derived domain, got %+v", first)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(all))
	}
	if all[0].ID != first.ID || all[1].ID != second.ID {
		t.Fatalf("expected creation order, got %s, %s", all[0].ID, all[1].ID)
	}
	if all[0].Order >= all[1].Order {
		t.Fatalf("expected increasing order, got %d and %d", all[0].Order, all[1].Order)
	}
	if all[0].Token() != "token-1" {
		t.Fatalf("expected access token to round-trip, got %q", all[0].Token())
	}
	if all[1].AccessToken != nil {
		t.Fatal("expected nil access token for second account")
	}
}

func TestAccountRepository_GetUpdateDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db)
	ctx := context.Background()

	account := &models.Account{BaseURL: "https://fosstodon.org"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	account.Username = "bob"
	account.AccountID = strPtr("10923")
	account.Avatar = strPtr("https://fosstodon.org/avatars/bob.png")
	if err := repo.Update(ctx, account); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.Get(ctx, account.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Username != "bob" || got.AccountID == nil || *got.AccountID != "10923" {
		t.Fatalf("update not persisted: %+v", got)
	}
	if got.NeedsProfile() {
		t.Fatal("expected profile to be filled")
	}

	if err := repo.Delete(ctx, account.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, account.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, account.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on second delete, got %v", err)
	}
	if err := repo.Update(ctx, account); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on update, got %v", err)
	}
}

func TestAccountRepository_Validation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db)
	err := repo.Create(context.Background(), &models.Account{BaseURL: "mastodon.social"})
	if !errors.Is(err, models.ErrInvalidBaseURL) {
		t.Fatalf("expected ErrInvalidBaseURL, got %v", err)
	}
}

func TestAccountRepository_DuplicateUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &models.Account{BaseURL: "https://a.example", Username: "carol"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := repo.Create(ctx, &models.Account{BaseURL: "https://a.example", Username: "carol"})
	if !errors.Is(err, ErrAccountAlreadyExists) {
		t.Fatalf("expected ErrAccountAlreadyExists, got %v", err)
	}

	// Accounts without a username yet do not collide.
	for i := 0; i < 2; i++ {
		if err := repo.Create(ctx, &models.Account{BaseURL: "https://a.example"}); err != nil {
			t.Fatalf("Create pending account %d failed: %v", i, err)
		}
	}
}
