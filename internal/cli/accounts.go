package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/fedistream/internal/account"
	"github.com/tOgg1/fedistream/internal/db"
	"github.com/tOgg1/fedistream/internal/mastodon"
	"github.com/tOgg1/fedistream/internal/models"
	"github.com/tOgg1/fedistream/internal/rpc"
)

var (
	accountsAddToken        string
	accountsAddClientID     string
	accountsAddClientSecret string
	accountsAddNoVerify     bool
	accountsAddUse          bool
)

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsRemoveCmd)

	accountsAddCmd.Flags().StringVar(&accountsAddToken, "token", "", "access token reference (env:VAR, $VAR, file:path or literal)")
	accountsAddCmd.Flags().StringVar(&accountsAddClientID, "client-id", "", "OAuth client id")
	accountsAddCmd.Flags().StringVar(&accountsAddClientSecret, "client-secret", "", "OAuth client secret")
	accountsAddCmd.Flags().BoolVar(&accountsAddNoVerify, "no-verify", false, "skip fetching the profile from the server")
	accountsAddCmd.Flags().BoolVar(&accountsAddUse, "use", false, "select the account after adding it")
}

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"account"},
	Short:   "Manage accounts",
	Long:    "Manage the locally stored accounts whose timelines can be streamed.",
}

var accountsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		accounts, err := db.NewAccountRepository(database).List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, redactAccounts(accounts))
		}
		if len(accounts) == 0 {
			fmt.Fprintln(out, "No accounts found.")
			return nil
		}

		selected, _ := contextStore().Load()
		rows := make([][]string, 0, len(accounts))
		for _, acct := range accounts {
			marker := ""
			if selected != nil && selected.AccountID == acct.ID {
				marker = "*"
			}
			rows = append(rows, []string{
				marker,
				shortID(acct.ID),
				accountLabel(acct),
				acct.BaseURL,
				strconv.Itoa(acct.Order),
				formatYesNo(acct.Token() != ""),
			})
		}
		return writeTable(out, []string{"", "ID", "ACCOUNT", "SERVER", "ORDER", "TOKEN"}, rows)
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <base-url>",
	Short: "Add an account",
	Long: `Add an account on a server.

The token is resolved from a reference so secrets stay out of shell history:
  --token env:MASTODON_TOKEN
  --token file:~/.secrets/mastodon`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		acct := &models.Account{
			BaseURL:      strings.TrimRight(strings.TrimSpace(args[0]), "/"),
			ClientID:     accountsAddClientID,
			ClientSecret: accountsAddClientSecret,
		}
		if accountsAddToken != "" {
			token, err := account.ResolveCredential(accountsAddToken)
			if err != nil {
				return fmt.Errorf("failed to resolve token: %w", err)
			}
			acct.AccessToken = &token
		}

		repo := db.NewAccountRepository(database)
		if err := repo.Create(ctx, acct); err != nil {
			if errors.Is(err, db.ErrAccountAlreadyExists) {
				return fmt.Errorf("account %s is already stored", accountLabel(acct))
			}
			return fmt.Errorf("failed to add account: %w", err)
		}

		if !accountsAddNoVerify && acct.Token() != "" {
			client := mastodon.NewClient(clientConfig())
			backend := rpc.NewLocal(repo, db.NewUnreadSettingsRepository(database), client, nil)
			updated, err := backend.UpdateAccount(ctx, acct)
			if errors.Is(err, db.ErrAccountAlreadyExists) {
				if delErr := repo.Delete(ctx, acct.ID); delErr != nil {
					return errors.Join(err, delErr)
				}
				return fmt.Errorf("this account is already stored for %s", acct.Domain)
			}
			if err != nil {
				return fmt.Errorf("account stored as %s but the profile could not be fetched: %w", shortID(acct.ID), err)
			}
			acct = updated
		}

		if accountsAddUse {
			if err := selectAccount(acct); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, redactAccount(acct))
		}
		fmt.Fprintf(out, "Added %s (%s)\n", accountLabel(acct), shortID(acct.ID))
		PrintNextSteps(out, HintContext{Action: "add", AccountID: acct.ID, Selected: accountsAddUse})
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:     "remove <account>",
	Aliases: []string{"rm"},
	Short:   "Remove an account and its settings",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewAccountRepository(database)
		acct, err := findAccount(ctx, repo, args[0])
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, acct.ID); err != nil {
			return fmt.Errorf("failed to remove account: %w", err)
		}

		store := contextStore()
		if selected, err := store.Load(); err == nil && selected.AccountID == acct.ID {
			if err := store.Clear(); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", accountLabel(acct), shortID(acct.ID))
		return nil
	},
}

func clientConfig() mastodon.ClientConfig {
	return mastodon.ClientConfig{
		Timeout:           appConfig.HTTP.Timeout,
		RequestsPerSecond: appConfig.HTTP.RequestsPerSecond,
		Burst:             appConfig.HTTP.Burst,
	}
}

// redactAccount hides credentials from printed output.
func redactAccount(acct *models.Account) *models.Account {
	out := *acct
	out.ClientSecret = ""
	out.AccessToken = nil
	out.RefreshToken = nil
	return &out
}

func redactAccounts(accounts []*models.Account) []*models.Account {
	out := make([]*models.Account, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, redactAccount(acct))
	}
	return out
}
