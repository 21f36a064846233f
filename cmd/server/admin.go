package main

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := store.RollbackMigrations(cfg.Database.URL, cfg.Database.MigrationsDir, steps); err != nil {
				return err
			}
			slog.Info("migrations rolled back", "steps", steps)
			return nil
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback (0 rolls back all)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(_ *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
					return err
				}
				slog.Info("database migrations applied")
				return nil
			},
		},
		down,
	)
	return cmd
}

func newCreateKeyCmd() *cobra.Command {
	var (
		name   string
		scopes []string
		tenant string
	)
	cmd := &cobra.Command{
		Use:   "create-key",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseScopes(scopes)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			pool, err := store.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			s := store.NewPostgresStore(pool)

			t, err := s.EnsureTenant(cmd.Context(), tenant)
			if err != nil {
				return err
			}

			gen, err := mw.GenerateKey()
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			key := &models.APIKey{
				ID:        uuid.New(),
				TenantID:  t.ID,
				Name:      name,
				KeyHash:   gen.Hash,
				KeyPrefix: gen.Prefix,
				Scopes:    parsed,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.CreateAPIKey(cmd.Context(), key); err != nil {
				return fmt.Errorf("create api key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "tenant:  %s (%s)\nkey id:  %s\nscopes:  %s\napi key: %s\n",
				t.Name, t.ID, key.ID, strings.Join(parsed, ","), gen.Raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Key name, recorded as the actor of audit events")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{mw.ScopeRead, mw.ScopeWrite}, "Comma-separated scopes: read, write, admin")
	cmd.Flags().StringVar(&tenant, "tenant", "default", "Tenant name; created when missing")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// parseScopes validates, sorts and de-duplicates scope names.
func parseScopes(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !mw.ValidScope(s) {
			return nil, fmt.Errorf("unknown scope %q: must be one of read, write, admin", s)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
