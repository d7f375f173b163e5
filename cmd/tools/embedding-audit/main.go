// cmd/tools/embedding-audit/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ria-search/internal/common/config"
	"ria-search/internal/common/database"
	"ria-search/internal/common/logger"
	"ria-search/internal/store/postgres"
)

var errIssuesFound = errors.New("narratives with unusable embeddings found")

type auditor interface {
	AuditEmbeddings(ctx context.Context, limit int) ([]postgres.EmbeddingIssue, error)
	CountEmbeddings(ctx context.Context) (total, usable int, err error)
}

type options struct {
	configPath   string
	limit        int
	asJSON       bool
	failOnIssues bool
	timeout      time.Duration
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "embedding-audit",
		Short:         "Report narratives the semantic search path silently skips",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults to configs/config.yaml)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "query timeout")

	report := &cobra.Command{
		Use:   "report",
		Short: "List narratives with a missing or malformed embedding",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, a auditor) error {
				return runReport(ctx, a, cmd.OutOrStdout(), opts)
			})
		},
	}
	report.Flags().IntVar(&opts.limit, "limit", 100, "maximum number of narratives to list")
	report.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")
	report.Flags().BoolVar(&opts.failOnIssues, "fail-on-issues", false, "exit non-zero when any narrative is unusable")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count narratives and usable embeddings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, a auditor) error {
				return runStats(ctx, a, cmd.OutOrStdout(), opts)
			})
		},
	}
	stats.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")

	root.AddCommand(report, stats)
	return root
}

func withStore(ctx context.Context, opts *options, fn func(context.Context, auditor) error) error {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zapLog := logger.New(cfg.Logging.Level, "console")
	defer zapLog.Sync()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	if err := pg.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	zapLog.Debug("connected", zap.String("host", cfg.Database.Postgres.Host))

	store := postgres.New(pg.DB, logger.NewZapAdapter(zapLog), postgres.WithDimension(cfg.Search.Dimension))
	return fn(ctx, store)
}

func runReport(ctx context.Context, a auditor, out io.Writer, opts *options) error {
	issues, err := a.AuditEmbeddings(ctx, opts.limit)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(issues); err != nil {
			return err
		}
	} else if len(issues) == 0 {
		fmt.Fprintln(out, "all narratives carry a usable embedding")
	} else {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CRD\tNARRATIVE\tREASON\tWIDTH")
		for _, is := range issues {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%d\n", is.CRD, is.NarrativeID, is.Reason, is.Width)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if opts.failOnIssues && len(issues) > 0 {
		return fmt.Errorf("%w: %d", errIssuesFound, len(issues))
	}
	return nil
}

type statsOutput struct {
	Total    int     `json:"total"`
	Usable   int     `json:"usable"`
	Unusable int     `json:"unusable"`
	Coverage float64 `json:"coverage"`
}

func runStats(ctx context.Context, a auditor, out io.Writer, opts *options) error {
	total, usable, err := a.CountEmbeddings(ctx)
	if err != nil {
		return err
	}

	s := statsOutput{Total: total, Usable: usable, Unusable: total - usable}
	if total > 0 {
		s.Coverage = float64(usable) / float64(total)
	}

	if opts.asJSON {
		return json.NewEncoder(out).Encode(s)
	}
	_, err = fmt.Fprintf(out, "narratives: %d\nusable:     %d\nunusable:   %d\ncoverage:   %.1f%%\n",
		s.Total, s.Usable, s.Unusable, s.Coverage*100)
	return err
}
