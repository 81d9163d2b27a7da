package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/amongirl/internal/amongirl"
	"github.com/playperu/amongirl/internal/config"
	"github.com/playperu/amongirl/internal/server"
)

func newRootCmd(stdout io.Writer) *cobra.Command {
	serve := func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), stdout)
	}

	root := &cobra.Command{
		Use:   "amongirl",
		Short: "Game server for Among Us IRL.",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		newMigrateCmd(stdout),
		newAccountCmd(stdout),
		newAdminCmd(stdout),
	)

	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetHelpCommand(&cobra.Command{Hidden: true})
	root.SilenceErrors = true
	root.SilenceUsage = true
	return root
}

func newMigrateCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			db, schema, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if schema.Applied() {
				fmt.Fprintf(stdout, "migrated %s from version %d to %d\n", cfg.DBPath, schema.From, schema.To)
			}
			fmt.Fprintf(stdout, "database %s is up to date\n", cfg.DBPath)
			return nil
		},
	}
}

func newAccountCmd(stdout io.Writer) *cobra.Command {
	var email, name, password string

	create := &cobra.Command{
		Use:   "create",
		Short: "Create or update a local email/password account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}
			if name == "" {
				name, _, _ = strings.Cut(email, "@")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}

			store, closeDB, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			a, err := store.CreateLocalAccount(cmd.Context(), email, name, string(hash))
			if err != nil {
				return fmt.Errorf("creating account: %w", err)
			}
			fmt.Fprintf(stdout, "account %s (%s) ready\n", a.ID, a.Email)
			return nil
		},
	}

	fs := create.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVar(&email, "email", "", "login email")
	fs.StringVar(&name, "name", "", "display name (default: email local part)")
	fs.StringVar(&password, "password", "", "login password")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage local accounts",
	}
	cmd.AddCommand(create)
	return cmd
}

func newAdminCmd(stdout io.Writer) *cobra.Command {
	var revoke bool

	grant := &cobra.Command{
		Use:   "grant EMAIL",
		Short: "Make the player with EMAIL an admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			p, err := store.SetAdminByEmail(cmd.Context(), args[0], !revoke)
			if errors.Is(err, server.ErrNotFound) {
				return fmt.Errorf("no player with email %s; they must sign in once first", args[0])
			}
			if err != nil {
				return fmt.Errorf("updating player: %w", err)
			}
			fmt.Fprintf(stdout, "player %s admin=%t\n", p.ID, p.IsAdmin)
			return nil
		},
	}
	grant.Flags().BoolVar(&revoke, "revoke", false, "remove admin instead of granting it")

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admins",
	}
	cmd.AddCommand(grant)
	return cmd
}

// openStore loads config and opens a migrated store for one-off commands.
func openStore(cmd *cobra.Command) (*server.DocStore, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, _, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return server.NewDocStore(db, amongirl.DefaultCatalog()), func() { db.Close() }, nil
}
