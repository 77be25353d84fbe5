package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tracebase-eu/tracebase/cli/util"
	"github.com/tracebase-eu/tracebase/internal/cache"
	"github.com/tracebase-eu/tracebase/internal/config"
	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/orchestrator"
	"github.com/tracebase-eu/tracebase/internal/preset"
	"github.com/tracebase-eu/tracebase/internal/query"
	"github.com/tracebase-eu/tracebase/internal/remote"
)

var (
	watchFilters []string
	watchWait    time.Duration
)

var presetsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Apply navigation states from stdin to a local list query",
	Long: `Read one navigation query string per line from stdin, for example

  applyListFilter=CASES_LESS_CONTACTS&x=3&global={"locationId":"L1"}

and apply each through a local preset orchestrator. Every refresh prints the
list query as one JSON line. Metric presets are computed by the remote data
service configured in tracebase.yaml.`,
	PreRunE: initializeFormatter,
	RunE:    runPresetsWatch,
}

func init() {
	presetsWatchCmd.Flags().StringArrayVar(&watchFilters, "filter", nil, "page filter of the list view key=value (repeatable)")
	presetsWatchCmd.Flags().DurationVar(&watchWait, "wait", 30*time.Second, "how long to wait for pending cycles at end of input")
}

func runPresetsWatch(cmd *cobra.Command, args []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if settings.GetBool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	filters, err := util.ParseKeyValues(watchFilters)
	if err != nil {
		return err
	}
	base, err := query.NewParser(&cfg.Query).Parse(filters)
	if err != nil {
		return fmt.Errorf("invalid page filter: %w", err)
	}

	remoteClient, err := remote.New(cfg.Remote)
	if err != nil {
		return err
	}
	metrics, closeCache, err := cache.Wrap(remoteClient, cfg.Cache, nil)
	if err != nil {
		return err
	}
	defer func() { _ = closeCache() }()

	registry := preset.NewDefaultRegistry(preset.WithMetricService(metrics))
	list := orchestrator.NewListQuery(base)

	refresh := func(bool) {
		if err := formatter.PrintRefresh(list.Build()); err != nil {
			log.Error().Err(err).Msg("Failed to print list query")
		}
		promptIfInteractive()
	}
	onError := func(id preset.ID, err error) {
		formatter.PrintPresetError(id, err)
		promptIfInteractive()
	}

	o, err := orchestrator.New(registry, list, refresh, cfg.Orchestrator, orchestrator.WithErrorHandler(onError))
	if err != nil {
		return err
	}
	defer o.Close()
	o.Ready()

	promptIfInteractive()
	err = readNavigationLines(os.Stdin, func(line string) error {
		nav, err := globalfilter.NavigationFromQuery(line)
		if err != nil {
			formatter.PrintWarning(fmt.Sprintf("invalid navigation %q: %v", line, err))
			return nil
		}
		return o.Schedule(nav)
	})
	if err != nil {
		return err
	}

	return waitIdle(cmd.Context(), o, watchWait)
}

// waitIdle blocks until the orchestrator has no pending cycle
func waitIdle(ctx context.Context, o *orchestrator.Orchestrator, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for o.Loading() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pending preset cycle did not finish: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
