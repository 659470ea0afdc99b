package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marginwatch/internal/engine"
	"github.com/sells-group/marginwatch/internal/registry"
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Run the full compute pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		rules, err := registry.LoadRules(cfg.Engine.RulesPath)
		if err != nil {
			return eris.Wrap(err, "load rules")
		}

		run, err := engine.New(st, engine.WithRules(rules)).Run(ctx)
		if err != nil {
			return eris.Wrap(err, "compute run")
		}

		zap.L().Info("compute complete",
			zap.String("run_id", run.ID),
			zap.Int("lines", run.Lines),
			zap.Int("projects", run.Projects),
			zap.Int("triggers", run.Triggers),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	rootCmd.AddCommand(computeCmd)
}
