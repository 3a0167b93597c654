package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/t2r/internal/server"
	"github.com/desertthunder/t2r/internal/services"
	"github.com/urfave/cli/v3"
)

// AuthGoogle runs the OAuth2 consent flow for Google Tasks and saves the token.
func (r *Runner) AuthGoogle(ctx context.Context, cmd *cli.Command) error {
	google := r.config.Destination.Google

	config, err := services.GoogleOAuthConfig(google.CredentialsPath, "")
	if err != nil {
		return err
	}

	open := r.openURL
	if cmd.Bool("no-browser") {
		open = nil
	}

	r.writePlain("→ Opening browser for Google Tasks authorization...\n")
	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	token, err := server.Authorize(ctx, config, server.FlowOpts{
		Addr:   fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port),
		Open:   open,
		Logger: r.logger,
		Output: r.output,
	})
	if err != nil {
		return err
	}

	if err := services.SaveToken(google.TokenPath, token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Token saved to %s\n\n", google.TokenPath)
	return r.writePlain("Set destination.kind = \"google\" and run: t2r calendars\n")
}
