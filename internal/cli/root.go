// Package cli wires the idtoken command: flags and configuration in, one
// flow run, failure report and exit code out.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"git.sr.ht/~jakintosh/idtoken/internal/failure"
	"git.sr.ht/~jakintosh/idtoken/internal/flow"
	"git.sr.ht/~jakintosh/idtoken/pkg/client"
	"git.sr.ht/~jakintosh/idtoken/pkg/tokens"
)

const exitUsage = 2

// NewRootCommand builds the idtoken command. Labelled results go to stdout;
// logs go to stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "idtoken --keyfile PATH --audience AUD",
		Short: "Exchange a service account key for a Google-signed identity token",
		Long: `idtoken signs a short-lived JWT assertion with a service account key,
redeems it at the key's token endpoint for an identity token bound to the
given audience, and asks the tokeninfo endpoint to describe the result.

Every option can also be set through an IDTOKEN_ environment variable
(e.g. IDTOKEN_KEYFILE, IDTOKEN_TOKENINFO_URL) or a --config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return errors.Mark(err, ErrUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Mark(err, ErrUsage)
	})

	registerFlags(cmd.Flags())
	if err := bindFlags(v, cmd.Flags()); err != nil {
		panic(err)
	}

	return cmd
}

// Execute runs the command with args and returns the process exit code.
func Execute(
	ctx context.Context,
	args []string,
	stdout io.Writer,
	stderr io.Writer,
) int {
	cmd := NewRootCommand(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrUsage) {
		fmt.Fprintf(stderr, "Error: %v\n\n%s", err, cmd.UsageString())
		return exitUsage
	}
	failure.Report(stderr, err)
	return failure.ExitCode(err)
}

func run(
	ctx context.Context,
	cfg *Config,
	stdout io.Writer,
	stderr io.Writer,
) error {
	logger, err := NewLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	c := client.New(
		client.WithTimeout(cfg.Timeout),
		client.WithTokenInfoURL(cfg.TokenInfoURL),
		client.WithLogger(logger),
	)

	result, err := flow.Run(ctx, flow.Options{
		KeyFile:       cfg.KeyFile,
		P12File:       cfg.P12File,
		ClientEmail:   cfg.ClientEmail,
		TokenURI:      cfg.TokenURI,
		Audience:      cfg.Audience,
		SkipTokenInfo: cfg.SkipTokenInfo,
		Out:           stdout,
		Logger:        logger,
		Builder:       tokens.NewBuilder(logger),
		Exchanger:     c,
		Inspector:     c,
	})
	if err != nil {
		return err
	}
	logger.Debug("done", "last_step", result.LastStep)
	return nil
}
