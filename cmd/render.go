package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/equity-map/internal/raster"
)

var (
	renderField    string
	renderGroups   []string
	renderOut      string
	renderWidth    int
	renderHeight   int
	renderNoLegend bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a variable map to PNG",
	Long:  "Loads the tract data, displays one variable and writes the map image. With --groups the dominant-race overlay is drawn and the race statistics CSV is written alongside.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("render"); err != nil {
			return err
		}

		d, err := loadDashboard(ctx, cfg)
		if err != nil {
			return err
		}

		if renderField != "" {
			if _, err := d.SelectField(renderField); err != nil {
				return err
			}
		}

		dir := renderOut
		if dir == "" {
			dir = cfg.Export.Dir
		}

		if len(renderGroups) > 0 {
			if err := d.SetRaceGroups(renderGroups); err != nil {
				return err
			}
			if _, err := d.Analyze(""); err != nil {
				return err
			}
		}

		dl, err := d.ExportMapPNG(raster.Options{
			Width:   renderWidth,
			Height:  renderHeight,
			Legends: !renderNoLegend,
		})
		if err != nil {
			return err
		}
		path, err := saveDownload(dir, dl)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Map written to %s\n", path)

		if res := d.Analysis(); res != nil {
			printRaceTable(out, res)
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderField, "field", "", "field to display (default from config)")
	renderCmd.Flags().StringSliceVar(&renderGroups, "groups", nil, "race groups to overlay and summarize")
	renderCmd.Flags().StringVar(&renderOut, "out", "", "output directory (default export.dir)")
	renderCmd.Flags().IntVar(&renderWidth, "width", 0, "image width in pixels (default map.width)")
	renderCmd.Flags().IntVar(&renderHeight, "height", 0, "image height in pixels (default map.height)")
	renderCmd.Flags().BoolVar(&renderNoLegend, "no-legend", false, "omit legends from the image")
	rootCmd.AddCommand(renderCmd)
}
