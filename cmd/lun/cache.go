package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lun/internal/cachestore"
	"lun/internal/config"
	"lun/internal/logging"
)

var (
	cacheStatsFormat string
	cacheRmTier      string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "inspect or maintain the cache store",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "print cache entry counts, total bytes, and budget utilization",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		st := store.Stats()

		budget := cfg.CacheSize
		utilization := 0.0
		if budget > 0 {
			utilization = float64(st.TotalBytes) / float64(budget) * 100
		}

		report := struct {
			TotalBytes        int64 `json:"total_bytes" yaml:"total_bytes"`
			MtimeEntries      int   `json:"mtime_entries" yaml:"mtime_entries"`
			ContentEntries    int   `json:"content_entries" yaml:"content_entries"`
			BudgetBytes       int64 `json:"budget_bytes" yaml:"budget_bytes"`
			UtilizationPercent float64 `json:"utilization_percent" yaml:"utilization_percent"`
		}{
			TotalBytes:        st.TotalBytes,
			MtimeEntries:      st.EntryCounts[cachestore.MtimeTier],
			ContentEntries:    st.EntryCounts[cachestore.ContentTier],
			BudgetBytes:       budget,
			UtilizationPercent: utilization,
		}

		switch cacheStatsFormat {
		case "yaml":
			data, err := yaml.Marshal(report)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
		default:
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}
		return nil
	},
}

var cacheGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "run the eviction pass outside a full run",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		evicted, err := store.GC(cfg.CacheSize, cachestore.DefaultRetention, time.Now())
		if err != nil {
			return err
		}
		if evicted > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "cache-full: evicted %d entries over budget\n", evicted)
		}
		return store.Flush()
	},
}

var cacheRmCmd = &cobra.Command{
	Use:   "rm",
	Short: "clear one or all cache tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		switch cacheRmTier {
		case "mtime":
			return store.Clear(cachestore.MtimeTier)
		case "content":
			return store.Clear(cachestore.ContentTier)
		case "", "all":
			return store.Clear()
		default:
			return fmt.Errorf("unknown --tier %q, expected mtime, content, or all", cacheRmTier)
		}
	},
}

func init() {
	cacheStatsCmd.Flags().StringVar(&cacheStatsFormat, "format", "json", "output format: json or yaml")
	cacheRmCmd.Flags().StringVar(&cacheRmTier, "tier", "all", "tier to clear: mtime, content, or all")
	cacheCmd.AddCommand(cacheStatsCmd, cacheGCCmd, cacheRmCmd)
}

func openStore() (*cachestore.Store, *config.Config, error) {
	root := configPath
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		root = wd
	}
	logger := logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.InfoLevel})
	store, err := cachestore.Open(root+"/.lun/cache", logger)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, err
	}
	if cacheSizeFlag > 0 {
		cfg.CacheSize = cacheSizeFlag
	}
	return store, cfg, nil
}
