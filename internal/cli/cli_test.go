package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/fedistream/internal/models"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	jsonOutput, jsonlOutput = false, false
	configFile, databasePath = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("MASTODON_TEST_TOKEN", "tok-123")
	return filepath.Join(home, "fedistream.db")
}

func TestAccountLifecycle(t *testing.T) {
	dbPath := isolate(t)

	out, err := runCLI(t, "--db", dbPath, "accounts", "add", "https://mastodon.example/", "--token", "env:MASTODON_TEST_TOKEN", "--no-verify", "--use")
	require.NoError(t, err)
	require.Contains(t, out, "Added mastodon.example")
	require.NotContains(t, out, "fedistream use ")

	out, err = runCLI(t, "--db", dbPath, "--json", "accounts", "list")
	require.NoError(t, err)
	var listed []models.Account
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, "https://mastodon.example", listed[0].BaseURL)
	require.Nil(t, listed[0].AccessToken)
	id := listed[0].ID

	out, err = runCLI(t, "--db", dbPath, "accounts", "list")
	require.NoError(t, err)
	require.Contains(t, out, shortID(id))
	require.Contains(t, out, "yes")

	out, err = runCLI(t, "--db", dbPath, "--json", "settings", "get")
	require.NoError(t, err)
	var settings models.UnreadSettings
	require.NoError(t, json.Unmarshal([]byte(out), &settings))
	require.Equal(t, models.DefaultUnreadSettings(), settings)

	out, err = runCLI(t, "--db", dbPath, "--json", "settings", "set", "--public")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &settings))
	require.Equal(t, models.UnreadSettings{Local: true, Public: true}, settings)

	out, err = runCLI(t, "--db", dbPath, "use")
	require.NoError(t, err)
	require.Contains(t, out, "account:mastodon.example")

	out, err = runCLI(t, "--db", dbPath, "accounts", "remove", shortID(id))
	require.NoError(t, err)
	require.Contains(t, out, "Removed")

	out, err = runCLI(t, "--db", dbPath, "use")
	require.NoError(t, err)
	require.Contains(t, out, "(no account selected)")
}

func TestStreamRequiresAccount(t *testing.T) {
	dbPath := isolate(t)

	_, err := runCLI(t, "--db", dbPath, "stream")
	require.ErrorContains(t, err, "none selected")

	_, err = runCLI(t, "--db", dbPath, "stream", "nobody")
	require.ErrorContains(t, err, "no accounts configured")
}

func TestConfigFileSetsDatabase(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	dbPath := filepath.Join(home, "from-config.db")
	cfgPath := filepath.Join(home, "config.yaml")
	cfg := "database:\n  path: " + dbPath + "\nlogging:\n  level: warn\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	out, err := runCLI(t, "--config", cfgPath, "accounts", "list")
	require.NoError(t, err)
	require.Contains(t, out, "No accounts found.")
	require.Equal(t, cfgPath, loader.ConfigFileUsed())
	require.FileExists(t, dbPath)
}

func TestMatchAccounts(t *testing.T) {
	accounts := []*models.Account{
		{ID: "a1b2c3d4-0000", Username: "alice", Domain: "mastodon.social"},
		{ID: "b1b2c3d4-0000", Username: "bob", Domain: "fosstodon.org"},
		{ID: "c1b2c3d4-0000", Username: "alicia", Domain: "hachyderm.io"},
	}

	matches := matchAccounts(accounts, "a1b2")
	require.Len(t, matches, 1)
	require.Equal(t, "alice", matches[0].Username)

	matches = matchAccounts(accounts, "ali")
	require.Len(t, matches, 2)
	require.Equal(t, "alice", matches[0].Username)

	matches = matchAccounts(accounts, "fosstodon")
	require.Len(t, matches, 1)
	require.Equal(t, "bob", matches[0].Username)

	require.Empty(t, matchAccounts(accounts, "  "))
	require.Equal(t, "alice@mastodon.social (a1b2c3d4), bob@fosstodon.org (b1b2c3d4)", formatAccountMatches(accounts[:2]))
}

func TestFormatMatchListTruncates(t *testing.T) {
	got := formatMatchList(7, func(i int) string { return string(rune('a' + i)) })
	require.Equal(t, "a, b, c, d, e, ... and 2 more", got)
	require.Equal(t, "none", formatMatchList(0, nil))
}

func TestWriteTable(t *testing.T) {
	var out bytes.Buffer
	err := writeTable(&out, []string{"VIEW", "ENTRIES"}, [][]string{
		{"home", "12"},
		{"notifications", "3"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Equal(t, []string{
		"VIEW           ENTRIES",
		"home           12",
		"notifications  3",
	}, lines)
}

func TestChangedChannelsOnlyReportsPassedFlags(t *testing.T) {
	var direct, local, public bool
	flags := pflag.NewFlagSet("set", pflag.ContinueOnError)
	flags.BoolVar(&direct, "direct", false, "")
	flags.BoolVar(&local, "local", false, "")
	flags.BoolVar(&public, "public", false, "")
	flags.Bool("verbose", false, "")

	require.NoError(t, flags.Parse([]string{"--public", "--local=false", "--verbose"}))
	changes, err := changedChannels(flags)
	require.NoError(t, err)
	require.Equal(t, map[models.Channel]bool{
		models.ChannelPublic: true,
		models.ChannelLocal:  false,
	}, changes)

	empty := pflag.NewFlagSet("set", pflag.ContinueOnError)
	empty.Bool("direct", false, "")
	changes, err = changedChannels(empty)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestHints(t *testing.T) {
	hints := generateHints(HintContext{Action: "add", AccountID: "0123456789"})
	require.Len(t, hints, 3)
	require.Contains(t, hints[0], "fedistream use 01234567")

	require.Len(t, generateHints(HintContext{Action: "add", AccountID: "0123456789", Selected: true}), 2)
	require.Nil(t, generateHints(HintContext{Action: "unknown"}))
}
