package main

import (
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/baharkarakas/pixelmart/internal/models"
)

func showCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "show [settlement-id]",
		Short: "Print one settlement as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (token == "") == (len(args) == 0) {
				return errors.New("give a settlement id or --token")
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var rec models.Settlement
			if token != "" {
				rec, err = a.Queries.ByCorrelationToken(cmd.Context(), token)
			} else {
				rec, err = a.Repos.Settlements.GetByID(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				models.Settlement
				State models.SettlementState `json:"state"`
			}{rec, rec.State()})
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "Look up by correlation token")
	return cmd
}
