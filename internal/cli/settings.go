package cli

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tOgg1/fedistream/internal/db"
	"github.com/tOgg1/fedistream/internal/models"
	"github.com/tOgg1/fedistream/internal/rpc"
)

var (
	settingsDirect bool
	settingsLocal  bool
	settingsPublic bool
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)

	settingsSetCmd.Flags().BoolVar(&settingsDirect, "direct", false, "stream direct messages")
	settingsSetCmd.Flags().BoolVar(&settingsLocal, "local", false, "stream the local timeline")
	settingsSetCmd.Flags().BoolVar(&settingsPublic, "public", false, "stream the federated timeline")
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change which channels stream",
	Long:  "The user channel always streams. Direct, local and public are toggled per account.",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [account]",
	Short: "Show channel settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		acct, err := resolveAccount(ctx, db.NewAccountRepository(database), contextStore(), firstArg(args))
		if err != nil {
			return err
		}
		backend := rpc.NewLocal(nil, db.NewUnreadSettingsRepository(database), nil, nil)
		settings, err := backend.GetUnreadSettings(ctx, acct.ID)
		if err != nil {
			return err
		}
		return printSettings(cmd, acct, settings)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [account] [--direct] [--local] [--public]",
	Short: "Change channel settings",
	Long:  "Only the flags given are changed, e.g. --public=false disables the federated timeline.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		changes, err := changedChannels(cmd.Flags())
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return fmt.Errorf("nothing to change; pass --direct, --local or --public")
		}

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		acct, err := resolveAccount(ctx, db.NewAccountRepository(database), contextStore(), firstArg(args))
		if err != nil {
			return err
		}

		repo := db.NewUnreadSettingsRepository(database)
		settings, err := rpc.NewLocal(nil, repo, nil, nil).GetUnreadSettings(ctx, acct.ID)
		if err != nil {
			return err
		}
		for channel, enabled := range changes {
			switch channel {
			case models.ChannelDirect:
				settings.Direct = enabled
			case models.ChannelLocal:
				settings.Local = enabled
			case models.ChannelPublic:
				settings.Public = enabled
			}
		}
		if err := repo.Upsert(ctx, acct.ID, settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		return printSettings(cmd, acct, settings)
	},
}

// changedChannels returns the channel toggles set on the command line.
func changedChannels(flags *pflag.FlagSet) (map[models.Channel]bool, error) {
	changes := make(map[models.Channel]bool)
	var parseErr error
	flags.Visit(func(f *pflag.Flag) {
		channel := models.Channel(f.Name)
		if !slices.Contains(models.SpecialtyChannels(), channel) {
			return
		}
		enabled, err := strconv.ParseBool(f.Value.String())
		if err != nil {
			parseErr = fmt.Errorf("invalid value for --%s: %w", f.Name, err)
			return
		}
		changes[channel] = enabled
	})
	return changes, parseErr
}

func printSettings(cmd *cobra.Command, acct *models.Account, settings models.UnreadSettings) error {
	out := cmd.OutOrStdout()
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(out, settings)
	}

	fmt.Fprintf(out, "Channels for %s:\n", accountLabel(acct))
	rows := make([][]string, 0, 4)
	rows = append(rows, []string{string(models.ChannelUser), formatYesNo(true)})
	for _, channel := range models.SpecialtyChannels() {
		rows = append(rows, []string{string(channel), formatYesNo(settings.Enabled(channel))})
	}
	return writeTable(out, []string{"CHANNEL", "STREAMED"}, rows)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
