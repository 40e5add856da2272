package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/techdir/internal/config"
)

// cmdDeps — общие зависимости подкоманд. cfg и logger заполняются
// в PersistentPreRunE корневой команды.
type cmdDeps struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	envFile string

	cfg    *config.Config
	logger *slog.Logger
}

func newCmdDeps() *cmdDeps {
	return &cmdDeps{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// load читает конфигурацию и настраивает логгер.
func (d *cmdDeps) load() error {
	if d.envFile != "" {
		if err := os.Setenv("TD_ENV_FILE", d.envFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	d.cfg = cfg
	d.logger = config.SetupLogger(cfg)
	return nil
}

// newRootCmd собирает корневую команду и подкоманды.
func newRootCmd(deps *cmdDeps) *cobra.Command {
	root := &cobra.Command{
		Use:   "techdir",
		Short: "techdir — каталог техников: JSON-коллекции и медиафайлы",
		Long: `techdir хранит коллекции каталога (техники, объявления, контакты поддержки,
учётная запись администратора) в JSON-файлах и сверяет медиафайлы в папках
техников с записями каталога.

Конфигурация задаётся переменными окружения TD_* и файлом .env.`,
		Version:      config.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.SetIn(deps.In)
	root.SetOut(deps.Out)
	root.SetErr(deps.Err)

	root.PersistentFlags().StringVar(
		&deps.envFile,
		"env-file",
		"",
		".env файл с переменными TD_* (по умолчанию $TD_ENV_FILE или ./.env)",
	)

	root.AddCommand(
		newServeCmd(deps),
		newSyncCmd(deps),
		newPruneThumbnailsCmd(deps),
		newSetAdminPasswordCmd(deps),
	)
	return root
}
