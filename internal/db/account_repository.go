package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/fedistream/internal/models"
)

// Account repository errors.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account with this domain and username already exists")
)

const accountColumns = `
	id, base_url, domain, username, client_id, client_secret,
	access_token, refresh_token, remote_account_id, avatar,
	sort_order, created_at, updated_at`

// AccountRepository handles account persistence.
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create adds a new account. A missing ID is generated, a missing domain is
// derived from the base url, and the account is appended to the end of the
// list.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.Domain == "" {
		account.Domain = models.DomainFromBaseURL(account.BaseURL)
	}
	if err := account.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sort_order), 0) + 1 FROM accounts`).Scan(&next); err != nil {
			return fmt.Errorf("failed to compute account order: %w", err)
		}
		account.Order = next

		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (`+accountColumns+`
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			account.ID,
			account.BaseURL,
			account.Domain,
			account.Username,
			account.ClientID,
			account.ClientSecret,
			account.AccessToken,
			account.RefreshToken,
			account.AccountID,
			account.Avatar,
			account.Order,
			account.CreatedAt.Format(time.RFC3339Nano),
			account.UpdatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrAccountAlreadyExists
			}
			return fmt.Errorf("failed to insert account: %w", err)
		}
		return nil
	})
}

// Get retrieves an account by ID.
func (r *AccountRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	return account, err
}

// List retrieves every account in display order.
func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY sort_order, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// Update overwrites the mutable fields of an account.
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	account.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			base_url = ?, domain = ?, username = ?, client_id = ?, client_secret = ?,
			access_token = ?, refresh_token = ?, remote_account_id = ?, avatar = ?,
			sort_order = ?, updated_at = ?
		WHERE id = ?
	`,
		account.BaseURL,
		account.Domain,
		account.Username,
		account.ClientID,
		account.ClientSecret,
		account.AccessToken,
		account.RefreshToken,
		account.AccountID,
		account.Avatar,
		account.Order,
		account.UpdatedAt.Format(time.RFC3339Nano),
		account.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireAffected(result, ErrAccountNotFound)
}

// Delete removes an account and, through the foreign key, its settings.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return requireAffected(result, ErrAccountNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	var account models.Account
	var accessToken, refreshToken, remoteID, avatar sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&account.ID,
		&account.BaseURL,
		&account.Domain,
		&account.Username,
		&account.ClientID,
		&account.ClientSecret,
		&accessToken,
		&refreshToken,
		&remoteID,
		&avatar,
		&account.Order,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	account.AccessToken = nullableString(accessToken)
	account.RefreshToken = nullableString(refreshToken)
	account.AccountID = nullableString(remoteID)
	account.Avatar = nullableString(avatar)

	if account.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if account.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &account, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
