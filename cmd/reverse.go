package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

var (
	reverseDebug  bool
	reverseOutput string
)

type reverseResult struct {
	Latitude  float64          `json:"latitude" yaml:"latitude"`
	Longitude float64          `json:"longitude" yaml:"longitude"`
	Address   *geocode.Address `json:"address" yaml:"address"`
}

var reverseCmd = &cobra.Command{
	Use:   "reverse <lat> <lon>",
	Short: "Look up the address at a coordinate",
	Long: `Reverse geocodes a coordinate. Use -- before a negative longitude so it
is not read as a flag.

Example:
  incident-geocoder reverse -- 32.7157 -117.1611`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lat, lon, err := parseCoords(args[0], args[1])
		if err != nil {
			return err
		}

		env, err := initResolver(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []geocode.CallOption
		if reverseDebug {
			stderr := cmd.ErrOrStderr()
			opts = append(opts, geocode.WithDebug(func(line string) {
				fmt.Fprintln(stderr, line) //nolint:errcheck
			}))
		}

		addr, err := env.Resolver.ReverseResolve(ctx, lat, lon, opts...)
		if err != nil {
			return err
		}

		return writeOutput(cmd.OutOrStdout(), reverseOutput, reverseResult{
			Latitude:  lat,
			Longitude: lon,
			Address:   addr,
		})
	},
}

func parseCoords(latStr, lonStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || math.IsNaN(lat) || lat < -90 || lat > 90 {
		return 0, 0, eris.Errorf("invalid latitude: %s", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || math.IsNaN(lon) || lon < -180 || lon > 180 {
		return 0, 0, eris.Errorf("invalid longitude: %s", lonStr)
	}
	return lat, lon, nil
}

func init() {
	reverseCmd.Flags().BoolVar(&reverseDebug, "debug", false, "print cache and provider progress to stderr")
	reverseCmd.Flags().StringVarP(&reverseOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(reverseCmd)
}
