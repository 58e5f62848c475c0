// File: cmd/filerug/commands.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartdevs17/fil-e-rug/internal/connection"
	"github.com/smartdevs17/fil-e-rug/internal/models"
	"github.com/smartdevs17/fil-e-rug/internal/provider"
	"github.com/smartdevs17/fil-e-rug/internal/storage"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Fil-E-Rug %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := storage.ValidateStorageConfig(&cfg.Storage); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration is valid!")
		fmt.Fprintf(out, "Environment: %s\n", cfg.App.Environment)
		fmt.Fprintf(out, "Filecoin RPC: %s (chain %d)\n", cfg.Filecoin.NodeURL, cfg.Filecoin.ChainID)
		fmt.Fprintf(out, "Database: %s\n", cfg.Storage.Type)
		fmt.Fprintf(out, "Provider: %s\n", cfg.Providers.Default)
		fmt.Fprintf(out, "Hasher: %s\n", cfg.Chains.Hasher)
		return nil
	},
}

// testCmd checks connectivity to every configured backend
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		fmt.Fprintln(out, "Testing Fil-E-Rug connectivity...")

		fmt.Fprintf(out, "Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.Open(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()
		if err := store.Ping(); err != nil {
			return fmt.Errorf("storage ping failed: %w", err)
		}
		fmt.Fprintln(out, "✓ Storage connection successful")

		fmt.Fprintf(out, "Testing storage provider (%s)...\n", cfg.Providers.Default)
		p, err := provider.New(&cfg.Providers, store, nil)
		if err != nil {
			return fmt.Errorf("failed to create provider: %w", err)
		}
		sample := []byte(fmt.Sprintf(`{"check":"fil-e-rug","timestamp":%d}`, time.Now().UnixMilli()))
		uploaded, err := p.Upload(ctx, "fil-e-rug-connectivity-test.json", sample)
		if err != nil {
			return fmt.Errorf("provider upload failed: %w", err)
		}
		fmt.Fprintf(out, "✓ Provider upload successful (CID %s)\n", uploaded.CID)

		if cfg.Filecoin.NodeURL != "" {
			fmt.Fprintf(out, "Testing Filecoin RPC connection to %s...\n", cfg.Filecoin.NodeURL)
			conn := connection.NewConnectionManager(&cfg.Filecoin, nil)
			defer conn.Close()
			if err := conn.HealthCheckWithContext(ctx); err != nil {
				return fmt.Errorf("failed to reach Filecoin RPC: %w", err)
			}
			block, err := conn.GetLatestBlockNumber(ctx)
			if err != nil {
				return fmt.Errorf("failed to read latest block: %w", err)
			}
			fmt.Fprintf(out, "✓ Filecoin RPC connection successful (block %d)\n", block)
		}

		fmt.Fprintln(out, "\nAll connectivity tests passed! ✓")
		return nil
	},
}

// chainCmd groups chain record commands
var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Store and list rated chain records",
}

var chainStoreCmd = &cobra.Command{
	Use:   "store <file.json>",
	Short: "Classify and store chain records from a JSON file (object or array)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		chains, err := decodeChains(raw)
		if err != nil {
			return err
		}

		return withApplication(func(app *Application) error {
			results := make([]models.StorageResult, 0, len(chains))
			var failed int
			for _, chain := range chains {
				result, err := app.chains.StoreChainData(cmd.Context(), chain)
				if err != nil {
					failed++
				}
				results = append(results, result)
			}
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d records failed to store", failed, len(chains))
			}
			return nil
		})
	},
}

var chainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored chain records by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")

		decision := models.Decision(category)
		if models.ParseDecision(category) != decision {
			return fmt.Errorf("category must be rugged, safe or pending, got %q", category)
		}

		return withApplication(func(app *Application) error {
			chains, err := app.chains.GetChainsByCategory(cmd.Context(), decision, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), chains)
		})
	},
}

// statsCmd prints bucket counts and index statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(func(app *Application) error {
			indexStats, err := app.storage.GetStorageStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"chains": app.chains.GetStorageStats(cmd.Context()),
				"index":  indexStats,
			})
		})
	},
}

// votesCmd groups pending vote commands
var votesCmd = &cobra.Command{
	Use:   "votes",
	Short: "Inspect and submit queued proposal votes",
}

var votesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued votes",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		return withApplication(func(app *Application) error {
			pending, err := app.votes.List(cmd.Context(), user)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pending)
		})
	},
}

var votesSubmitCmd = &cobra.Command{
	Use:   "submit <proposal-id> <user-address>",
	Short: "Submit a queued vote to the proposal contract",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(func(app *Application) error {
			result, err := app.votes.Submit(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	chainListCmd.Flags().String("category", string(models.DecisionPending), "rugged, safe or pending")
	chainListCmd.Flags().Int("limit", 0, "maximum records to list")
	chainCmd.AddCommand(chainStoreCmd, chainListCmd)

	votesListCmd.Flags().String("user", "", "only list votes queued by this address")
	votesCmd.AddCommand(votesListCmd, votesSubmitCmd)
}

// decodeChains accepts a single record or an array of records
func decodeChains(raw []byte) ([]models.ChainData, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var chains []models.ChainData
		if err := json.Unmarshal(raw, &chains); err != nil {
			return nil, fmt.Errorf("invalid chain records: %w", err)
		}
		return chains, nil
	}

	var chain models.ChainData
	if err := json.Unmarshal(raw, &chain); err != nil {
		return nil, fmt.Errorf("invalid chain record: %w", err)
	}
	return []models.ChainData{chain}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
