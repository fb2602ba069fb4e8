package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gridlabs/gridquery/internal/config"
	"github.com/gridlabs/gridquery/internal/detect"
	"github.com/gridlabs/gridquery/internal/engine"
	"github.com/gridlabs/gridquery/internal/logging"
	"github.com/gridlabs/gridquery/internal/plan"
	"github.com/gridlabs/gridquery/internal/registry"
	"github.com/gridlabs/gridquery/internal/schema"
	"github.com/gridlabs/gridquery/internal/sheet"
	"github.com/gridlabs/gridquery/internal/store"
)

type app struct {
	cfg    *config.Config
	engine *engine.Engine
	store  *store.Store
}

func newRootCmd() *cobra.Command {
	var workbook string

	root := &cobra.Command{
		Use:          "gridquery",
		Short:        "Detect tables in a workbook and run structured query plans against them",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&workbook, "workbook", "", "path of the .xlsx workbook (overrides SOURCE_WORKBOOK)")

	root.AddCommand(newRefreshCmd(&workbook))
	root.AddCommand(newTablesCmd(&workbook))
	root.AddCommand(newQueryCmd(&workbook))
	return root
}

// setup loads configuration and assembles the engine. Every subcommand runs
// a refresh first so queries always see the workbook's current content.
func setup(workbook string) (*app, error) {
	godotenv.Overload()

	if workbook != "" {
		os.Setenv("SOURCE_WORKBOOK", workbook)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	pairs, err := cfg.Fuzzy.Pairs()
	if err != nil {
		st.Close()
		return nil, err
	}
	subs := make([]plan.Substitution, len(pairs))
	for i, p := range pairs {
		subs[i] = plan.Substitution{A: p[0], B: p[1]}
	}

	eng := engine.New(
		sheet.NewWorkbookConnector(cfg.Source.WorkbookPath),
		registry.Open(cfg.Registry.Path),
		schema.NewStore(),
		st,
		nil,
		engine.Config{
			Detect: detect.Config{
				MinRegionRows:  cfg.Detect.MinRegionRows,
				MinRegionCols:  cfg.Detect.MinRegionCols,
				HeaderScanRows: cfg.Detect.HeaderScanRows,
				TypeSampleSize: cfg.Detect.TypeSampleSize,
			},
			MaxLimit:              cfg.Query.MaxLimit,
			QueryTimeout:          cfg.Query.Timeout,
			TopK:                  cfg.Query.TopK,
			Fuzzy:                 plan.NewFuzzyExpander(subs, cfg.Fuzzy.MaxVariants),
			MaxConcurrentRebuilds: cfg.Query.MaxConcurrentRebuilds,
		},
	)
	return &app{cfg: cfg, engine: eng, store: st}, nil
}

func newRefreshCmd(workbook *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the workbook and rebuild changed sheets",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*workbook)
			if err != nil {
				return err
			}
			defer a.store.Close()

			stats, err := a.engine.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newTablesCmd(workbook *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List detected tables and their schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*workbook)
			if err != nil {
				return err
			}
			defer a.store.Close()

			if _, err := a.engine.Refresh(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a.engine.Tables())
		},
	}
}

func newQueryCmd(workbook *string) *cobra.Command {
	var planPath, question string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Execute a query plan (JSON from --plan file or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var reader io.Reader = cmd.InOrStdin()
			if planPath != "" {
				f, err := os.Open(planPath)
				if err != nil {
					return fmt.Errorf("open plan file: %w", err)
				}
				defer f.Close()
				reader = f
			}
			var p plan.QueryPlan
			if err := json.NewDecoder(reader).Decode(&p); err != nil {
				return fmt.Errorf("decode plan: %w", err)
			}

			a, err := setup(*workbook)
			if err != nil {
				return err
			}
			defer a.store.Close()

			if _, err := a.engine.Refresh(cmd.Context()); err != nil {
				return err
			}
			res, err := a.engine.Query(cmd.Context(), p, question)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "path of the plan JSON file (default: stdin)")
	cmd.Flags().StringVar(&question, "question", "", "original question, used to narrow schema retrieval")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
