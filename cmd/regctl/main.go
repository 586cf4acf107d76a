// Command regctl is the operator CLI for API keys and schema migrations.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/nameregistry/internal/adapters/api"
	"github.com/poyrazK/nameregistry/internal/adapters/repository"
	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/spf13/cobra"
)

const keyPrefix = "nrk_"

// cli carries the hooks the commands call, so tests can swap the database out.
type cli struct {
	dbURL       string
	openRepo    func(dbURL string) (ports.APIKeyRepository, func() error, error)
	migrateUp   func(dbURL string) error
	migrateDown func(dbURL string, steps int) error
	now         func() time.Time
}

func main() {
	c := &cli{
		openRepo:    openPostgres,
		migrateUp:   repository.MigrateUp,
		migrateDown: repository.MigrateDown,
		now:         time.Now,
	}
	if err := newRootCmd(c).Execute(); err != nil {
		os.Exit(1)
	}
}

func openPostgres(dbURL string) (ports.APIKeyRepository, func() error, error) {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repository.NewPostgresRepository(db), db.Close, nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "regctl",
		Short:        "Operate a name registry node",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.dbURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL (defaults to $DATABASE_URL)")

	root.AddCommand(newAPIKeyCmd(c), newMigrateCmd(c))
	return root
}

func (c *cli) requireDB() error {
	if c.dbURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return nil
}

// withRepo opens the key store for the duration of fn.
func (c *cli) withRepo(fn func(repo ports.APIKeyRepository) error) error {
	if err := c.requireDB(); err != nil {
		return err
	}
	repo, closeFn, err := c.openRepo(c.dbURL)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	return fn(repo)
}

func newAPIKeyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Create, list and revoke API keys",
	}

	var (
		account, role, name string
		days                int
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key bound to an account",
		Long: `Create an API key bound to a ledger account.

The raw key is printed once and never stored; only its SHA-256 hash is kept.

Examples:
  regctl apikey create --account 0xabc --role user --name wallet-bridge
  regctl apikey create --account ops --role admin --days 30`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRepo(func(repo ports.APIKeyRepository) error {
				return generateKey(cmd.Context(), repo, domain.Account(account), domain.Role(role), name, days, c.now(), cmd.OutOrStdout())
			})
		},
	}
	create.Flags().StringVar(&account, "account", "", "Ledger account the key acts as")
	create.Flags().StringVar(&role, "role", string(domain.RoleUser), "Role (admin or user)")
	create.Flags().StringVar(&name, "name", "generic-key", "Description of the key")
	create.Flags().IntVar(&days, "days", 365, "Validity in days (0 for no expiry)")
	_ = create.MarkFlagRequired("account")

	var listAccount string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the API keys of an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRepo(func(repo ports.APIKeyRepository) error {
				return listKeys(cmd.Context(), repo, domain.Account(listAccount), cmd.OutOrStdout())
			})
		},
	}
	list.Flags().StringVar(&listAccount, "account", "", "Ledger account")
	_ = list.MarkFlagRequired("account")

	var revokeAccount, revokeID string
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRepo(func(repo ports.APIKeyRepository) error {
				return revokeKey(cmd.Context(), repo, domain.Account(revokeAccount), revokeID, cmd.OutOrStdout())
			})
		},
	}
	revoke.Flags().StringVar(&revokeAccount, "account", "", "Ledger account owning the key")
	revoke.Flags().StringVar(&revokeID, "id", "", "API key ID to revoke")
	_ = revoke.MarkFlagRequired("account")
	_ = revoke.MarkFlagRequired("id")

	cmd.AddCommand(create, list, revoke)
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireDB(); err != nil {
				return err
			}
			if err := c.migrateUp(c.dbURL); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireDB(); err != nil {
				return err
			}
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			if err := c.migrateDown(c.dbURL, steps); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return err
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func generateKey(ctx context.Context, repo ports.APIKeyRepository, account domain.Account, role domain.Role, name string, days int, now time.Time, out io.Writer) error {
	if err := domain.ValidateAccount(account); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("unknown role %q, want admin or user", role)
	}
	if days < 0 {
		return fmt.Errorf("--days must not be negative")
	}

	rawKey := make([]byte, 16)
	if _, err := rand.Read(rawKey); err != nil {
		return err
	}
	keyString := keyPrefix + hex.EncodeToString(rawKey)

	apiKey := &domain.APIKey{
		ID:        uuid.New().String(),
		Account:   account,
		Name:      name,
		KeyHash:   api.HashKey(keyString),
		KeyPrefix: keyString[:8],
		Role:      role,
		Active:    true,
		CreatedAt: now.UTC(),
	}
	if days > 0 {
		expiresAt := now.UTC().AddDate(0, 0, days)
		apiKey.ExpiresAt = &expiresAt
	}

	if err := repo.CreateAPIKey(ctx, apiKey); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}

	expires := "never"
	if apiKey.ExpiresAt != nil {
		expires = apiKey.ExpiresAt.Format(time.RFC3339)
	}
	_, err := fmt.Fprintf(out, `API Key Created Successfully!
---------------------------
ID:         %s
Account:    %s
Role:       %s
Expires:    %s
VALUE:      %s
---------------------------
CAUTION: This is the only time the key will be shown.
`, apiKey.ID, account, role, expires, keyString)
	return err
}

func listKeys(ctx context.Context, repo ports.APIKeyRepository, account domain.Account, out io.Writer) error {
	keys, err := repo.ListAPIKeys(ctx, account)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "API Keys for Account: %s\n", account)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tPREFIX\tSTATUS")
	for _, k := range keys {
		status := "active"
		if !k.Active {
			status = "revoked"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.Role, k.KeyPrefix, status)
	}
	return tw.Flush()
}

func revokeKey(ctx context.Context, repo ports.APIKeyRepository, account domain.Account, id string, out io.Writer) error {
	if id == "" {
		return fmt.Errorf("ID is required for revocation")
	}
	if err := repo.DeleteAPIKey(ctx, account, id); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "API Key %s revoked\n", id)
	return err
}
