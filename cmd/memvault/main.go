// memvault is a thin CLI over the context-memory engine. It contains no
// business logic: every subcommand maps onto one public engine operation.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memvault/internal/config"
	"memvault/internal/engine"
	"memvault/internal/logging"
	"memvault/internal/storage"
)

var (
	// Global flags
	configPath string
	dataDir    string
	user       string
	verbose    bool

	logger *zap.SugaredLogger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "memvault",
	Short: "memvault - context-memory subsystem CLI",
	Long: `memvault stores, chunks, caches, secures, and serves textual knowledge
fragments. Documents are sanitized for PII, split into bounded chunks,
encrypted, and placed in hot/warm/cold storage tiers; reads go through a
two-level cache.

This CLI drives only the engine's public operations.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig().Logging
		if verbose {
			cfg.Level = "debug"
		}
		var err error
		logger, err = logging.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// withEngine loads configuration, constructs the engine, runs fn, and shuts
// the engine down.
func withEngine(fn func(*engine.Engine) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	eng, err := engine.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := eng.Init(); err != nil {
		return err
	}
	defer func() {
		if err := eng.Shutdown(); err != nil {
			logger.Warnw("Engine shutdown failed", "error", err)
		}
	}()

	return fn(eng)
}

var addCmd = &cobra.Command{
	Use:   "add [path...]",
	Short: "Ingest documents: sanitize, chunk, encrypt, and store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			failed := 0
			for _, path := range args {
				if eng.AddDocument(path, user) {
					fmt.Printf("added %s\n", path)
				} else {
					fmt.Printf("failed %s\n", path)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(args))
			}
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get [query]",
	Short: "Retrieve relevant context for a free-text query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		return withEngine(func(eng *engine.Engine) error {
			if cmd.Flags().Changed("threshold") {
				fmt.Println(eng.GetContext(args[0], k, user, threshold))
			} else {
				fmt.Println(eng.GetContext(args[0], k, user))
			}
			return nil
		})
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys [key...]",
	Short: "Retrieve chunks by exact storage key",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			for i, text := range eng.GetContextByKeys(args, user) {
				fmt.Printf("=== %s ===\n%s\n", args[i], text)
			}
			return nil
		})
	},
}

var focusCmd = &cobra.Command{
	Use:   "focus [topic...]",
	Short: "Build a token-budgeted context across topics",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")
		perTopic, _ := cmd.Flags().GetInt("per-topic")
		return withEngine(func(eng *engine.Engine) error {
			fmt.Println(eng.BuildFocusedContext(args, maxTokens, perTopic, user))
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Securely delete a key or a whole document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			if !eng.SecureDelete(args[0], user) {
				return fmt.Errorf("delete %s denied or failed", args[0])
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		})
	},
}

var scanPIICmd = &cobra.Command{
	Use:   "scan-pii",
	Short: "Re-scan stored documents for PII",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			findings := eng.ScanForPII(user)
			if len(findings) == 0 {
				fmt.Println("no PII found")
				return nil
			}
			for _, f := range findings {
				fmt.Printf("%s: %d finding(s)\n", f.DocumentID, f.Total)
				for kind, count := range f.Kinds {
					fmt.Printf("  %s: %d\n", kind, count)
				}
			}
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run a storage tier migration pass now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			stats, ok := eng.Migrate(user)
			if !ok {
				return fmt.Errorf("migration denied or failed")
			}
			fmt.Printf("promoted=%d demoted=%d\n", stats.Promoted, stats.Demoted)
			return nil
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check storage records against backing files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			stats, ok := eng.Verify(user)
			if !ok {
				return fmt.Errorf("verify denied or failed")
			}
			fmt.Printf("checked=%d orphaned=%d untracked=%d\n",
				stats.Checked, stats.OrphanedRecords, stats.UntrackedFiles)
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache, storage, and partition statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			s := eng.Stats()
			fmt.Printf("documents: %d (%d chunks)\n", s.Documents, s.Chunks)
			fmt.Printf("cache: %d memory / %d disk entries, hit rate %.1f%%\n",
				s.Cache.MemoryEntries, s.Cache.DiskEntries, s.Cache.HitRate*100)
			for _, tier := range []storage.Tier{storage.TierHot, storage.TierWarm, storage.TierCold} {
				fmt.Printf("storage[%s]: %d items, %s\n",
					tier, s.Storage.TierItems[tier],
					humanize.Bytes(uint64(s.Storage.TierBytes[tier])))
			}

			health := eng.IndexHealth()
			fmt.Printf("health: %s\n", health.Status)
			for _, issue := range health.Issues {
				fmt.Printf("  - %s\n", issue)
			}
			return nil
		})
	},
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List tracked documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			for _, d := range eng.ListDocuments(user) {
				fmt.Printf("%s  chunks=%d  type=%s  owner=%s  added=%s\n",
					d.ID, d.ChunkCount, d.ContentType, d.Owner,
					humanize.Time(d.AddedAt))
			}
			return nil
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("n")
		return withEngine(func(eng *engine.Engine) error {
			events, err := eng.RecentAuditEvents(n)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Printf("%s  %-22s %-12s %v\n",
					ev.Time.Format("2006-01-02 15:04:05"), ev.EventType, ev.User, ev.Details)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "memvault.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the data directory")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "", "acting user for access checks and audit")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	getCmd.Flags().Int("k", 5, "maximum number of matches")
	getCmd.Flags().Float64("threshold", 0, "minimum similarity score")
	focusCmd.Flags().Int("max-tokens", 4000, "token budget for the assembled context")
	focusCmd.Flags().Int("per-topic", 3, "maximum items per topic")
	auditCmd.Flags().IntP("n", "n", 20, "number of events to show")

	rootCmd.AddCommand(addCmd, getCmd, keysCmd, focusCmd, deleteCmd,
		scanPIICmd, migrateCmd, verifyCmd, statsCmd, docsCmd, auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
