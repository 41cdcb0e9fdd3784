package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/dashboard"
	"github.com/sells-group/equity-map/internal/state"
)

var (
	genKind        string
	genName        string
	genDescription string
	genVars        []string
	genGroups      []string
	genOut         string
	genWorkbook    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a residential or activity index",
	Long:  "Asks the backend to compute a composite index from the given variables and writes the tract values as CSV. With --groups the index is summarized by dominant race and the statistics CSV is written too.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("generate"); err != nil {
			return err
		}
		kind, err := state.ParseKind(genKind)
		if err != nil {
			return eris.Wrap(err, "generate: --kind")
		}

		d, err := loadDashboard(ctx, cfg)
		if err != nil {
			return err
		}
		if err := d.SetSelection(genVars); err != nil {
			return err
		}

		slot, err := d.Generate(ctx, kind, genName, genDescription)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printSlot(out, slot)

		dir := genOut
		if dir == "" {
			dir = cfg.Export.Dir
		}

		downloads := []func() (*dashboard.Download, error){
			func() (*dashboard.Download, error) { return d.ExportIndexCSV(kind) },
		}
		if len(genGroups) > 0 {
			if err := d.SetRaceGroups(genGroups); err != nil {
				return err
			}
			res, err := d.Analyze(slot.FieldName)
			if err != nil {
				return err
			}
			printRaceTable(out, res)
			downloads = append(downloads, func() (*dashboard.Download, error) { return d.ExportRaceStats(kind) })
		}
		if genWorkbook {
			downloads = append(downloads, d.ExportWorkbook)
		}

		for _, fn := range downloads {
			dl, err := fn()
			if err != nil {
				return err
			}
			path, err := saveDownload(dir, dl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Wrote %s\n", path)
		}

		zap.L().Info("index generated", zap.String("field", slot.FieldName))
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&genKind, "kind", "", "index type: residential or activity")
	generateCmd.Flags().StringVar(&genName, "name", "", "index name (letters, numbers, underscores)")
	generateCmd.Flags().StringVar(&genDescription, "description", "", "optional description")
	generateCmd.Flags().StringSliceVar(&genVars, "vars", nil, "index variables to combine")
	generateCmd.Flags().StringSliceVar(&genGroups, "groups", nil, "race groups to summarize the index by")
	generateCmd.Flags().StringVar(&genOut, "out", "", "output directory (default export.dir)")
	generateCmd.Flags().BoolVar(&genWorkbook, "workbook", false, "also write the XLSX workbook")
	_ = generateCmd.MarkFlagRequired("kind")
	_ = generateCmd.MarkFlagRequired("name")
	_ = generateCmd.MarkFlagRequired("vars")
	rootCmd.AddCommand(generateCmd)
}
