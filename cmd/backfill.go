package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

var (
	backfillInput       string
	backfillOutput      string
	backfillConcurrency int
)

// Backfill row statuses.
const (
	statusResolved   = "resolved"
	statusUnresolved = "unresolved"
	statusSkipped    = "skipped"
)

// incidentRow is one input incident. Details is the JSON-encoded fire
// dispatch detail list; it is consulted when CrossStreet is empty.
type incidentRow struct {
	IncidentNo  string `csv:"incident_no"`
	Source      string `csv:"source"`
	Location    string `csv:"location"`
	CrossStreet string `csv:"cross_street,omitempty"`
	Details     string `csv:"details,omitempty"`
}

// query returns the location text to resolve for the incident.
func (r incidentRow) query() string {
	cross := r.CrossStreet
	if cross == "" && r.Details != "" {
		var details []string
		if err := json.Unmarshal([]byte(r.Details), &details); err == nil {
			cross = geocode.CrossStreetFromDetails(details)
		}
	}
	return geocode.IncidentQuery(r.Source, r.Location, cross)
}

type backfillRow struct {
	IncidentNo string   `csv:"incident_no"`
	Query      string   `csv:"query"`
	Latitude   *float64 `csv:"latitude"`
	Longitude  *float64 `csv:"longitude"`
	Precision  string   `csv:"precision"`
	Status     string   `csv:"status"`
}

type backfillSummary struct {
	Total      int
	Resolved   int
	Unresolved int
	Skipped    int
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Geocode a CSV of incidents",
	Long: `Reads incidents (incident_no,source,location[,cross_street][,details])
and writes incident_no,query,latitude,longitude,precision,status.

Fire dispatch (SDFD) rows with a cross street are resolved as intersections.
All workers share one provider gate, so concurrency only overlaps cache
lookups and bookkeeping with the spaced provider calls.

Example:
  incident-geocoder backfill --input incidents.csv --output geocoded.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rows, err := readIncidents(backfillInput)
		if err != nil {
			return err
		}
		zap.L().Info("backfill: parsed input", zap.Int("incidents", len(rows)))

		if backfillConcurrency > 0 {
			cfg.Batch.Concurrency = backfillConcurrency
		}
		env, err := initResolver(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var bar *progressbar.ProgressBar
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(len(rows),
				progressbar.OptionSetDescription("Geocoding incidents"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		out, summary, err := runBackfill(ctx, env.Resolver, rows, func() {
			if bar != nil {
				_ = bar.Add(1)
			}
		})
		if bar != nil {
			_ = bar.Finish()
		}
		if err != nil {
			return err
		}

		zap.L().Info("backfill: complete",
			zap.Int("total", summary.Total),
			zap.Int("resolved", summary.Resolved),
			zap.Int("unresolved", summary.Unresolved),
			zap.Int("skipped", summary.Skipped),
		)

		return writeBackfill(cmd.OutOrStdout(), backfillOutput, out)
	},
}

// runBackfill resolves every row through the resolver's batch workers.
// Output rows keep input order. done is called once per finished row.
func runBackfill(ctx context.Context, r *geocode.Resolver, rows []incidentRow, done func()) ([]backfillRow, backfillSummary, error) {
	out := make([]backfillRow, len(rows))
	summary := backfillSummary{Total: len(rows)}

	var (
		queries []string
		index   []int
	)
	for i, row := range rows {
		q := row.query()
		out[i] = backfillRow{IncidentNo: row.IncidentNo, Query: q}
		if q == "" {
			summary.Skipped++
			out[i].Status = statusSkipped
			zap.L().Debug("backfill: no location", zap.String("incident_no", row.IncidentNo))
			done()
			continue
		}
		queries = append(queries, q)
		index = append(index, i)
	}

	results, err := r.BatchResolve(ctx, queries, geocode.WithProgress(func(int, *geocode.Result) {
		done()
	}))
	if err != nil {
		return nil, backfillSummary{}, eris.Wrap(err, "backfill: resolve")
	}

	for j, res := range results {
		row := &out[index[j]]
		if res == nil {
			summary.Unresolved++
			row.Status = statusUnresolved
			zap.L().Info("backfill: could not geocode",
				zap.String("incident_no", row.IncidentNo),
				zap.String("query", row.Query),
			)
			continue
		}

		summary.Resolved++
		row.Latitude = &res.Latitude
		row.Longitude = &res.Longitude
		row.Precision = string(res.Precision)
		row.Status = statusResolved
		zap.L().Debug("backfill: updated",
			zap.String("incident_no", row.IncidentNo),
			zap.String("precision", row.Precision),
		)
	}
	return out, summary, nil
}

func readIncidents(path string) ([]incidentRow, error) {
	if path == "" {
		return nil, eris.New("backfill: --input is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "backfill: open input")
	}
	defer f.Close() //nolint:errcheck

	return decodeIncidents(f)
}

func decodeIncidents(r io.Reader) ([]incidentRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if eris.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "backfill: read header")
	}

	var rows []incidentRow
	for {
		var row incidentRow
		if err := dec.Decode(&row); err != nil {
			if eris.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "backfill: decode row %d", len(rows)+1)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// writeBackfill writes rows as CSV to path, or to stdout when path is "" or "-".
func writeBackfill(stdout io.Writer, path string, rows []backfillRow) error {
	w := stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "backfill: create output")
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	return encodeBackfill(w, rows)
}

func encodeBackfill(w io.Writer, rows []backfillRow) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(backfillRow{}); err != nil {
		return eris.Wrap(err, "backfill: write header")
	}
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return eris.Wrap(err, "backfill: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "backfill: flush output")
}

func init() {
	backfillCmd.Flags().StringVar(&backfillInput, "input", "", "incident CSV to geocode (required)")
	backfillCmd.Flags().StringVar(&backfillOutput, "output", "-", "output CSV path, - for stdout")
	backfillCmd.Flags().IntVar(&backfillConcurrency, "concurrency", 0, "resolver workers (0 uses batch.concurrency)")
	_ = backfillCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(backfillCmd)
}
