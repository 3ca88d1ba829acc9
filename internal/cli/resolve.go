package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tOgg1/fedistream/internal/config"
	"github.com/tOgg1/fedistream/internal/db"
	"github.com/tOgg1/fedistream/internal/models"
)

const maxSuggestions = 5

func shortID(id string) string {
	const limit = 8
	if len(id) <= limit {
		return id
	}
	return id[:limit]
}

// accountLabel renders username@domain, or the domain alone before the
// profile is known.
func accountLabel(account *models.Account) string {
	if account.Username == "" {
		return account.Domain
	}
	return account.Username + "@" + account.Domain
}

func findAccount(ctx context.Context, repo *db.AccountRepository, idOrName string) (*models.Account, error) {
	if strings.TrimSpace(idOrName) == "" {
		return nil, errors.New("account ID or username@domain required")
	}

	account, err := repo.Get(ctx, idOrName)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, db.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	accounts, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	matches := matchAccounts(accounts, idOrName)
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("account '%s' is ambiguous; matches: %s (use a longer prefix or full ID)", idOrName, formatAccountMatches(matches))
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("account '%s' not found (no accounts configured yet)", idOrName)
	}

	example := fmt.Sprintf("Example input: '%s' or '%s'", accountLabel(accounts[0]), shortID(accounts[0].ID))
	return nil, fmt.Errorf("account '%s' not found. %s", idOrName, example)
}

func matchAccounts(accounts []*models.Account, query string) []*models.Account {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil
	}

	matches := make([]*models.Account, 0)
	seen := make(map[string]struct{})

	for _, account := range accounts {
		if account == nil {
			continue
		}
		if strings.HasPrefix(account.ID, query) {
			if _, ok := seen[account.ID]; !ok {
				matches = append(matches, account)
				seen[account.ID] = struct{}{}
			}
			continue
		}
		label := strings.ToLower(accountLabel(account))
		if strings.HasPrefix(label, normalized) || (len(normalized) >= 3 && strings.Contains(label, normalized)) {
			if _, ok := seen[account.ID]; !ok {
				matches = append(matches, account)
				seen[account.ID] = struct{}{}
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		left := strings.ToLower(accountLabel(matches[i]))
		right := strings.ToLower(accountLabel(matches[j]))
		if left == right {
			return matches[i].ID < matches[j].ID
		}
		return left < right
	})

	return matches
}

func formatAccountMatches(accounts []*models.Account) string {
	return formatMatchList(len(accounts), func(i int) string {
		account := accounts[i]
		return fmt.Sprintf("%s (%s)", accountLabel(account), shortID(account.ID))
	})
}

func formatMatchList(count int, format func(int) string) string {
	if count == 0 {
		return "none"
	}

	limit := min(count, maxSuggestions)
	parts := make([]string, 0, limit+1)
	for i := 0; i < limit; i++ {
		parts = append(parts, format(i))
	}
	if count > maxSuggestions {
		parts = append(parts, fmt.Sprintf("... and %d more", count-maxSuggestions))
	}

	return strings.Join(parts, ", ")
}

// resolveAccount picks the account using the priority order:
// 1. Explicit argument (if provided)
// 2. Stored context from `fedistream use`
func resolveAccount(ctx context.Context, repo *db.AccountRepository, store *config.ContextStore, explicit string) (*models.Account, error) {
	if strings.TrimSpace(explicit) != "" {
		return findAccount(ctx, repo, explicit)
	}

	stored, err := store.Load()
	if err != nil {
		return nil, err
	}
	if stored.IsEmpty() {
		return nil, errors.New("no account given and none selected; run 'fedistream use <account>' or pass one")
	}

	account, err := repo.Get(ctx, stored.AccountID)
	if errors.Is(err, db.ErrAccountNotFound) {
		return nil, fmt.Errorf("selected account %s no longer exists; run 'fedistream use --clear'", shortID(stored.AccountID))
	}
	return account, err
}
