package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/api"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"

	"github.com/spf13/cobra"
)

func init() {
	tokenCmd.Flags().Int64Var(&tokenArgs.userID, "user-id", 0, "id of the farmer or vendor")
	tokenCmd.Flags().StringVar(&tokenArgs.role, "role", "", "farmer or vendor")
	tokenCmd.Flags().DurationVar(&tokenArgs.ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user-id")
	_ = tokenCmd.MarkFlagRequired("role")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketplacectl",
	Short: "Operator utility for the marketplace service",
	Long: `Operator utility for the marketplace service. Reads the same environment
(and .env file) as the server.`,
	SilenceUsage: true,
}

var tokenArgs struct {
	userID int64
	role   string
	ttl    time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign an API token for a farmer or vendor with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := models.Role(tokenArgs.role)
		if !role.Valid() {
			return fmt.Errorf("role must be farmer or vendor, got %q", tokenArgs.role)
		}
		if tokenArgs.userID <= 0 {
			return fmt.Errorf("user-id must be positive")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		token, err := api.IssueToken(cfg.Auth.JWTSecret, models.Actor{ID: tokenArgs.userID, Role: role}, tokenArgs.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the marketplace tables in DATABASE_URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	},
}
