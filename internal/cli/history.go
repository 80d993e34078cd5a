package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/botkit/internal/config"
	"github.com/soyeahso/botkit/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Show the logged activities of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "sqlite" {
				return fmt.Errorf("activity history needs storage.driver=sqlite (got %q)", cfg.Storage.Driver)
			}

			path := cfg.Storage.Path
			if path == "" {
				path = paths.Database()
			}
			db, err := store.Open(path, log)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := store.NewActivityLog(db).List(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			for _, r := range rows {
				fmt.Fprintf(out, "%s %-3s %-10s %s\n",
					r.CreatedAt.Format(time.DateTime), r.Direction, r.Activity.Type, r.Activity.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum activities to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
