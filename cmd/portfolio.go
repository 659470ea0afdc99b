package main

import (
	"os"
	"sync"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/marginwatch/internal/model"
)

var portfolioTriggers bool

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Print a portfolio summary from the derived metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		projects, err := st.ListProjectMetrics(ctx)
		if err != nil {
			return eris.Wrap(err, "list project metrics")
		}

		// Trigger lists are independent per project; fetch them in parallel.
		triggers := make(map[string][]model.Trigger, len(projects))
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(8)
		for _, p := range projects {
			g.Go(func() error {
				trs, err := st.ListTriggers(gctx, p.ProjectID)
				if err != nil {
					return eris.Wrapf(err, "list triggers %s", p.ProjectID)
				}
				mu.Lock()
				triggers[p.ProjectID] = trs
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		pr := message.NewPrinter(language.English)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		pr.Fprintln(w, "PROJECT\tNAME\tCONTRACT\tREALIZED MARGIN\tHEALTH\tSTATUS\tTRIGGERS")
		for _, p := range projects {
			pr.Fprintf(w, "%s\t%s\t$%.0f\t%.1f%%\t%.1f\t%s\t%d\n",
				p.ProjectID,
				p.ProjectName,
				p.ContractValue,
				p.RealizedMarginPct*100,
				p.HealthScore,
				p.Status,
				len(triggers[p.ProjectID]),
			)
		}
		if err := w.Flush(); err != nil {
			return eris.Wrap(err, "flush summary")
		}

		if portfolioTriggers {
			for _, p := range projects {
				for _, t := range triggers[p.ProjectID] {
					pr.Printf("  %s  %-20s %-6s value=%.4f threshold=%.4f\n",
						t.TriggerID, t.Type, t.Severity, t.Value, t.Threshold)
				}
			}
		}

		return nil
	},
}

func init() {
	portfolioCmd.Flags().BoolVar(&portfolioTriggers, "triggers", false, "list individual triggers per project")
	rootCmd.AddCommand(portfolioCmd)
}
