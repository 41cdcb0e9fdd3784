package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/equity-map/internal/registry"
)

var fieldsIndex bool

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List displayable fields and race groups",
	Long:  "Prints the field catalog. With --index the index-eligible variables are fetched from the backend and grouped by category.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		reg, err := registry.Load()
		if err != nil {
			return eris.Wrap(err, "load field registry")
		}

		if !fieldsIndex {
			printCatalog(out, reg)
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ids, err := newClient(cfg, reg).IndexFields(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch index fields")
		}
		printIndexGroups(out, reg.GroupIndexFields(ids))
		return nil
	},
}

func init() {
	fieldsCmd.Flags().BoolVar(&fieldsIndex, "index", false, "list index variables from the backend")
	rootCmd.AddCommand(fieldsCmd)
}
