package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// newSyncCmd — разовая сверка медиа без запуска сервера.
//
//	techdir sync
//	techdir sync --folder alice
func newSyncCmd(deps *cmdDeps) *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "сверить папки медиа с записями техников",
		Long: `Выполняет полный проход сверки (или одну папку с --folder) и печатает
итог в JSON. Требует, чтобы сервер на той же директории данных был остановлен.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(deps.cfg, deps.logger, "sync")
			if err != nil {
				return err
			}
			defer a.close()

			if folder != "" {
				res, err := a.reconciler.SyncFolder(cmd.Context(), folder)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}

			res, err := a.reconciler.SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(res.Failures) > 0 {
				deps.logger.Warn("Сверка завершена с ошибками", slog.Int("failures", len(res.Failures)))
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "имя папки техника (nickname)")
	return cmd
}

// printJSON печатает v с отступами.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
