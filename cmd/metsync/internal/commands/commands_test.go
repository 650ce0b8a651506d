package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/metsync/internal/logger"
	sqlitestore "github.com/wolfeidau/metsync/internal/store/sqlite"
)

type testCLI struct {
	Debug   bool
	Backend BackendFlags `embed:""`

	Refresh    RefreshCmd    `cmd:""`
	Federation FederationCmd `cmd:""`
	Entity     EntityCmd     `cmd:""`
}

func run(t *testing.T, stdout *bytes.Buffer, args ...string) error {
	t.Helper()

	var cli testCLI
	parser, err := kong.New(&cli,
		kong.Name("metsync"),
		kong.Writers(stdout, &bytes.Buffer{}),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
		kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)

	kctx, err := parser.Parse(args)
	require.NoError(t, err)

	return kctx.Run(&Globals{Debug: cli.Debug, Version: "test", Backend: &cli.Backend})
}

func TestRefreshCmd_MissingLogConfig(t *testing.T) {
	var stdout bytes.Buffer
	missing := filepath.Join(t.TempDir(), "logging.yaml")

	err := run(t, &stdout, "refresh", "--log", missing, "--store-type", "memory", "--doc-store", "memory")
	require.ErrorIs(t, err, logger.ErrLogConfigNotFound)
	require.Contains(t, stdout.String(), "File '"+missing+"' does not exist.")
	require.Contains(t, stdout.String(), "Usage: metsync refresh")
}

func TestCommands_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	backend := []string{
		"--store-type", "sqlite",
		"--sqlite-path", filepath.Join(dir, "metsync.db"),
		"--doc-store", "fs",
		"--doc-dir", filepath.Join(dir, "metadata"),
	}
	var out bytes.Buffer

	args := append([]string{"federation", "add", "Example", "--file", filepath.Join("testdata", "examplefed.xml")}, backend...)
	require.NoError(t, run(t, &out, args...))

	args = append([]string{"entity", "add", "--file", filepath.Join("testdata", "entity.xml")}, backend...)
	require.NoError(t, run(t, &out, args...))

	args = append([]string{"refresh", "--no-fetch"}, backend...)
	require.NoError(t, run(t, &out, args...))

	args = append([]string{"entity", "show", "idp-1"}, backend...)
	require.NoError(t, run(t, &out, args...))

	ctx := context.Background()
	db, err := sqlitestore.Open(ctx, filepath.Join(dir, "metsync.db"))
	require.NoError(t, err)
	defer db.Close()

	feds, err := sqlitestore.NewFederationStore(db).List(ctx)
	require.NoError(t, err)
	require.Len(t, feds, 1)
	require.Equal(t, "ExampleFed", feds[0].Name)
	require.NotNil(t, feds[0].RefreshedAt)

	ents := sqlitestore.NewEntityStore(db)
	idp, err := ents.GetByEntityID(ctx, "idp-1")
	require.NoError(t, err)
	require.Equal(t, feds[0].FederationID, idp.FederationIDs[0])

	standalone, err := ents.ListStandalone(ctx)
	require.NoError(t, err)
	require.Len(t, standalone, 1)
	require.Equal(t, "https://standalone.example/sp", standalone[0].EntityID)
}

func TestEntityAddCmd_Validate(t *testing.T) {
	require.Error(t, (&EntityAddCmd{}).Validate())
	require.NoError(t, (&EntityAddCmd{URL: "https://example.org/md"}).Validate())
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
