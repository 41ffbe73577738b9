package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed"
	"github.com/BaSui01/catalogfed/sources"
	"github.com/BaSui01/catalogfed/types"
)

type queryOptions struct {
	filter     string
	start      int
	pageSize   int
	sort       string
	direction  string
	sourceIDs  []string
	timeout    time.Duration
	totalHits  bool
	jsonOutput bool
}

func newQueryCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query [filter]",
		Short: "Run one federated query and print the merged page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.filter = args[0]
			}
			return runQuery(cmd, rootFlags, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.filter, "filter", "f", "", "Text filter matched against record titles and ids")
	cmd.Flags().IntVar(&opts.start, "start", 1, "1-based index of the first result")
	cmd.Flags().IntVarP(&opts.pageSize, "page-size", "n", 0, "Number of results, 0 uses the configured default")
	cmd.Flags().StringVar(&opts.sort, "sort", types.AttributeEffective, "Sort attribute (effective, created, modified, relevance)")
	cmd.Flags().StringVar(&opts.direction, "direction", string(types.SortDescending), "Sort direction (asc or desc)")
	cmd.Flags().StringSliceVarP(&opts.sourceIDs, "source", "s", nil, "Only query these source ids (repeatable)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Query timeout, 0 uses the configured default")
	cmd.Flags().BoolVar(&opts.totalHits, "total-hits", false, "Ask sources for their total hit count")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the full response as JSON")

	return cmd
}

func (o *queryOptions) request() (*types.QueryRequest, error) {
	direction := types.SortDirection(strings.ToLower(o.direction))
	if direction != types.SortAscending && direction != types.SortDescending {
		return nil, fmt.Errorf("invalid --direction %q, want asc or desc", o.direction)
	}
	if o.pageSize < 0 {
		return nil, fmt.Errorf("invalid --page-size %d", o.pageSize)
	}

	q := types.Query{
		StartIndex:        o.start,
		PageSize:          o.pageSize,
		Sort:              types.SortBy{Attribute: o.sort, Direction: direction},
		TimeoutMillis:     o.timeout.Milliseconds(),
		RequestsTotalHits: o.totalHits,
	}
	if o.filter != "" {
		q.Filter = o.filter
	}
	req := types.NewQueryRequest(q)
	req.SourceIDs = o.sourceIDs
	return req, nil
}

func runQuery(cmd *cobra.Command, rootFlags *rootFlags, opts *queryOptions) error {
	req, err := opts.request()
	if err != nil {
		return newCommandError("build query", err, "Run 'catalogfed query --help' for the accepted flags.")
	}

	cfg, _, err := loadConfig(rootFlags)
	if err != nil {
		return err
	}
	// A single query has nothing to scrape.
	cfg.Metrics.Enabled = false

	logger := initLogger(oneShotLogConfig(cfg.Log))
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	engine, err := catalogfed.New(ctx, cfg, catalogfed.WithLogger(logger))
	if err != nil {
		return newCommandError("start engine", err, "Run 'catalogfed sources --check' to find the failing source.")
	}
	defer func() {
		if err := engine.Close(ctx); err != nil {
			logger.Warn("engine close failed", zap.Error(err))
		}
	}()

	resp, err := engine.Query(ctx, req)
	if err != nil {
		return newCommandError("run query", err, "")
	}

	if opts.jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(resp)
	}
	return renderQueryTable(cmd, resp)
}

func renderQueryTable(cmd *cobra.Command, resp *types.QueryResponse) error {
	out := cmd.OutOrStdout()
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "#\tSOURCE\tID\tEFFECTIVE\tTITLE")
	start := resp.Request.Query.NormalizedStartIndex()
	for i, r := range resp.Results {
		effective := "-"
		if t, ok := r.Time(types.AttributeEffective); ok {
			effective = t.UTC().Format(time.RFC3339)
		}
		title, _ := r.Attributes[sources.AttributeTitle].(string)
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n", start+i, r.SourceID, r.ID, effective, title)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	hits := "unknown"
	if resp.Hits != types.UnknownHits {
		hits = fmt.Sprintf("%d", resp.Hits)
	}
	fmt.Fprintf(out, "\n%d results, hits: %s, more: %t\n", len(resp.Results), hits, resp.HasMoreResults)

	for _, d := range resp.ProcessingDetails.List() {
		if d.HasError() {
			fmt.Fprintf(out, "source %s failed: %v\n", d.SourceID, d.Cause)
		}
		for _, w := range d.Warnings {
			fmt.Fprintf(out, "source %s: %s\n", d.SourceID, w)
		}
	}
	return nil
}
