package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/charleshuang3/finansecure/internal/auth"
	"github.com/charleshuang3/finansecure/internal/config"
	"github.com/charleshuang3/finansecure/internal/gormw"
	"github.com/charleshuang3/finansecure/internal/storage"
	"github.com/charleshuang3/finansecure/internal/token"
)

// operator holds what every subcommand needs, opened once by the root
// command before the subcommand runs.
type operator struct {
	db  *gormw.DB
	svc *auth.Service
}

func openOperator(configPath string) (*operator, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := gormw.Open(&cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	signer, err := token.NewSigner(&cfg.JWT)
	if err != nil {
		db.Close()
		return nil, err
	}

	svc, err := auth.NewService(
		&cfg.Auth,
		storage.NewUserStore(db, cfg.Auth.StoreTimeout),
		storage.NewRefreshTokenStore(db, cfg.Auth.StoreTimeout),
		signer,
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &operator{db: db, svc: svc}, nil
}

func (o *operator) Close() {
	o.svc.Close()
	o.db.Close()
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Operate the FinanSecure auth service database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "Path to configuration file")

	withOperator := func(run func(ctx context.Context, cmd *cobra.Command, op *operator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("config path must be provided via CONFIG_PATH env var or -c flag")
			}

			op, err := openOperator(configPath)
			if err != nil {
				return err
			}
			defer op.Close()

			return run(cmd.Context(), cmd, op, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "purge",
			Short: "Delete expired refresh tokens",
			Args:  cobra.NoArgs,
			RunE:  withOperator(runPurge),
		},
		&cobra.Command{
			Use:   "sessions <user-id>",
			Short: "List active sessions of a user",
			Args:  cobra.ExactArgs(1),
			RunE:  withOperator(runSessions),
		},
		&cobra.Command{
			Use:   "revoke-all <user-id>",
			Short: "Revoke every active session of a user",
			Args:  cobra.ExactArgs(1),
			RunE:  withOperator(runRevokeAll),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, version)
			},
		},
	)

	return cmd
}

func runPurge(ctx context.Context, cmd *cobra.Command, op *operator, _ []string) error {
	n, err := op.svc.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge expired refresh tokens: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired refresh tokens\n", n)
	return nil
}

func runSessions(ctx context.Context, cmd *cobra.Command, op *operator, args []string) error {
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}

	sessions, err := op.svc.ListSessions(ctx, userID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tEXPIRES\tIP\tUSER AGENT")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.CreatedAt.Format(time.RFC3339),
			s.ExpiresAt.Format(time.RFC3339),
			s.IPAddress,
			s.UserAgent)
	}
	return w.Flush()
}

func runRevokeAll(ctx context.Context, cmd *cobra.Command, op *operator, args []string) error {
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}

	n, err := op.svc.RevokeAllSessions(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %d sessions of user %s\n", n, userID)
	return nil
}
