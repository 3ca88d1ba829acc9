package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/fedistream/internal/db"
	"github.com/tOgg1/fedistream/internal/models"
)

var useClear bool

func init() {
	rootCmd.AddCommand(useCmd)
	useCmd.Flags().BoolVar(&useClear, "clear", false, "clear the selected account")
}

var useCmd = &cobra.Command{
	Use:   "use [account]",
	Short: "Select the default account",
	Long:  "Select the account commands act on when none is given. Without arguments the current selection is shown.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		store := contextStore()

		if useClear {
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Selection cleared.")
			return nil
		}

		if len(args) == 0 {
			current, err := store.Load()
			if err != nil {
				return err
			}
			if IsJSONOutput() || IsJSONLOutput() {
				return WriteOutput(out, current)
			}
			fmt.Fprintln(out, current.String())
			PrintNextSteps(out, HintContext{Action: "use", AccountID: current.AccountID})
			return nil
		}

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		acct, err := findAccount(ctx, db.NewAccountRepository(database), args[0])
		if err != nil {
			return err
		}
		if err := selectAccount(acct); err != nil {
			return err
		}
		fmt.Fprintf(out, "Using %s (%s)\n", accountLabel(acct), shortID(acct.ID))
		PrintNextSteps(out, HintContext{Action: "use", AccountID: acct.ID, Selected: true})
		return nil
	},
}

func selectAccount(acct *models.Account) error {
	store := contextStore()
	current, err := store.Load()
	if err != nil {
		return err
	}
	current.SetAccount(acct.ID, accountLabel(acct))
	return store.Save(current)
}
