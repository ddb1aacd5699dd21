package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/incident-geocoder/internal/store"
	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

var cacheOutput string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the geocode cache",
}

var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the cache tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("cache migrated", zap.String("driver", cfg.Store.Driver))
		fmt.Fprintln(cmd.OutOrStdout(), "cache migrated") //nolint:errcheck
		return nil
	},
}

type cacheEntry struct {
	Normalized string          `json:"normalized" yaml:"normalized"`
	Key        string          `json:"key" yaml:"key"`
	Result     *geocode.Result `json:"result" yaml:"result"`
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <location>",
	Short: "Show the cached result for location text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		normalized := geocode.Normalize(strings.Join(args, " "))
		if normalized == "" {
			return eris.New("cache get: location is empty")
		}

		st, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := st.Get(cmd.Context(), normalized)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), cacheOutput, cacheEntry{
			Normalized: normalized,
			Key:        geocode.QueryKey(normalized),
			Result:     res,
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count cached entries by precision",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), cacheOutput, stats)
	},
}

// openCache opens and migrates the configured store.
func openCache(cmd *cobra.Command) (store.Store, error) {
	if err := cfg.Validate("cache"); err != nil {
		return nil, err
	}
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}
	return st, nil
}

func init() {
	cacheCmd.PersistentFlags().StringVarP(&cacheOutput, "output", "o", "json", "output format: json or yaml")
	cacheCmd.AddCommand(cacheMigrateCmd, cacheGetCmd, cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
