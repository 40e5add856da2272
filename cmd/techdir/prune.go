package main

import (
	"github.com/spf13/cobra"
)

// newPruneThumbnailsCmd — разовая очистка осиротевших миниатюр.
func newPruneThumbnailsCmd(deps *cmdDeps) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune-thumbnails",
		Short: "удалить миниатюры без исходного медиафайла",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(deps.cfg, deps.logger, "prune-thumbnails")
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.gc.RunOnce(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "только показать найденные миниатюры")
	return cmd
}
