package main

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/baharkarakas/pixelmart/internal/services"
)

func reconcileCmd() *cobra.Command {
	var (
		all    bool
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile [settlement-id]",
		Short: "Retry failed seller transfers",
		Long: `Retry the failed transfer legs of one settlement, or of every
outstanding settlement with --all. Legs that already succeeded are never
repeated.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("give a settlement id or --all, not both")
			}
			if !all && len(args) != 1 {
				return errors.New("need a settlement id or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var results []services.ReconcileResult
			if all {
				results, err = a.Reconciler.ReconcileAll(cmd.Context(), limit)
			} else {
				var res services.ReconcileResult
				res, err = a.Reconciler.Reconcile(cmd.Context(), args[0])
				results = []services.ReconcileResult{res}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, results)
			}
			failures := 0
			for _, r := range results {
				if r.Error != "" {
					failures++
					fmt.Fprintf(out, "%s  error: %s\n", r.SettlementID, r.Error)
					continue
				}
				if len(r.StillFailed) > 0 {
					failures++
				}
				fmt.Fprintf(out, "%s  state=%s  recovered=[%s]  still_failed=[%s]  in_progress=[%s]\n",
					r.SettlementID, r.Settlement.State(),
					strings.Join(r.Recovered, ","), strings.Join(r.StillFailed, ","), strings.Join(r.InProgress, ","))
			}
			if failures > 0 {
				return errors.Errorf("%d settlement(s) still have failed transfers", failures)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reconcile every outstanding settlement")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum records with --all")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}
