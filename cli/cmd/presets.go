package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracebase-eu/tracebase/cli/client"
	"github.com/tracebase-eu/tracebase/cli/util"
)

var (
	resolveX       string
	resolveGlobal  string
	resolveParams  []string
	resolveExecute bool
	resolveCount   bool
	resolveEntity  string
)

var presetsCmd = &cobra.Command{
	Use:     "presets",
	Aliases: []string{"preset"},
	Short:   "Inspect and resolve list presets",
}

var presetsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List available presets",
	PreRunE: initializeClient,
	RunE:    runPresetsList,
}

var presetsResolveCmd = &cobra.Command{
	Use:   "resolve <preset>",
	Short: "Resolve a preset into its composed query",
	Long: `Resolve a preset on the server and print the composed query.

Examples:
  tracebase presets resolve CASES_LESS_CONTACTS --x 3
  tracebase presets resolve CASES_BY_LOCATION --param locationId=L1 --global '{"date":"2024-03-10"}'
  tracebase presets resolve CASES_DECEASED --param deleted=eq.false --count`,
	Args:    cobra.ExactArgs(1),
	PreRunE: initializeClient,
	RunE:    runPresetsResolve,
}

func init() {
	presetsResolveCmd.Flags().StringVar(&resolveX, "x", "", "extra preset parameter")
	presetsResolveCmd.Flags().StringVar(&resolveGlobal, "global", "", "global filter as JSON")
	presetsResolveCmd.Flags().StringArrayVar(&resolveParams, "param", nil, "navigation or page filter parameter key=value (repeatable)")
	presetsResolveCmd.Flags().BoolVar(&resolveExecute, "execute", false, "run the query and include the records")
	presetsResolveCmd.Flags().BoolVar(&resolveCount, "count", false, "count the matching records")
	presetsResolveCmd.Flags().StringVar(&resolveEntity, "entity", "", "entity for presets that apply to any list")

	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsResolveCmd)
	presetsCmd.AddCommand(presetsWatchCmd)
}

func runPresetsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	presets, err := apiClient.ListPresets(ctx)
	if err != nil {
		return err
	}

	return formatter.PrintPresets(presets)
}

func runPresetsResolve(cmd *cobra.Command, args []string) error {
	params, err := util.ParseKeyValues(resolveParams)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := apiClient.ResolvePreset(ctx, args[0], client.ResolveOptions{
		X:       resolveX,
		Global:  resolveGlobal,
		Params:  params,
		Execute: resolveExecute,
		Count:   resolveCount,
		Entity:  resolveEntity,
	})
	if err != nil {
		return err
	}

	return formatter.PrintResolution(resp)
}

// readNavigationLines calls fn for every non-blank, non-comment line of r
func readNavigationLines(r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read navigation input: %w", err)
	}
	return nil
}

func promptIfInteractive() {
	if util.IsInteractive() && !quiet {
		fmt.Fprint(os.Stderr, "navigation> ")
	}
}
