package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

var (
	resolveDebug  bool
	resolveOutput string
)

type resolveResult struct {
	Query      string          `json:"query" yaml:"query"`
	Normalized string          `json:"normalized" yaml:"normalized"`
	Result     *geocode.Result `json:"result" yaml:"result"`
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <location>",
	Short: "Resolve incident location text to coordinates",
	Long: `Resolves a location such as "4500 BLOCK UNIVERSITY AVE" or
"BROADWAY / KETTNER" to a latitude/longitude inside the configured region.

Examples:
  incident-geocoder resolve "University Ave and 30th St"
  incident-geocoder resolve --debug --output yaml "4500 BLOCK UNIVERSITY AVE"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")

		env, err := initResolver(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []geocode.CallOption
		if resolveDebug {
			stderr := cmd.ErrOrStderr()
			opts = append(opts, geocode.WithDebug(func(line string) {
				fmt.Fprintln(stderr, line) //nolint:errcheck
			}))
		}

		res, err := env.Resolver.Resolve(ctx, query, opts...)
		if err != nil {
			return err
		}

		return writeOutput(cmd.OutOrStdout(), resolveOutput, resolveResult{
			Query:      query,
			Normalized: geocode.Normalize(query),
			Result:     res,
		})
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveDebug, "debug", false, "print each cache lookup and variant attempt to stderr")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(resolveCmd)
}
