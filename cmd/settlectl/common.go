package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/baharkarakas/pixelmart/internal/app"
	"github.com/baharkarakas/pixelmart/internal/config"
	"github.com/baharkarakas/pixelmart/internal/logger"
	"github.com/baharkarakas/pixelmart/internal/models"
)

// openApp loads configuration from the environment and connects to the store.
// Logs go to stderr so stdout stays parseable.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewWriter(os.Stderr, cfg.Env, cfg.LogLevel)
	return app.Open(cmd.Context(), cfg, log)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSettlement(w io.Writer, s models.Settlement) {
	fmt.Fprintf(w, "%s  %-30s  total=%d  state=%s", s.ID, s.CorrelationToken, s.TotalPrice, s.State())
	if len(s.FailedTransfers) > 0 {
		fmt.Fprintf(w, "  failed=%s", strings.Join(s.FailedTransfers, ","))
	}
	fmt.Fprintln(w)
}
