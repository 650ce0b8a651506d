package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/metsync/cmd/metsync/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"METSYNC_DEBUG"`
		Version kong.VersionFlag

		Backend commands.BackendFlags `embed:""`

		Refresh    commands.RefreshCmd    `cmd:"" help:"Refresh every federation and standalone entity"`
		Federation commands.FederationCmd `cmd:"" help:"Manage federations"`
		Entity     commands.EntityCmd     `cmd:"" help:"Manage entities"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("metsync"),
		kong.Description("Reconcile SAML federation metadata into a record store."),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Backend: &cli.Backend})
	cmd.FatalIfErrorf(err)
}
