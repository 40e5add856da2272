package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// newSetAdminPasswordCmd — задание пароля администратора для HTTP Basic.
//
//	echo 's3cret-pass' | techdir set-admin-password --username admin
func newSetAdminPasswordCmd(deps *cmdDeps) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "set-admin-password",
		Short: "задать имя и пароль администратора",
		Long: `Сохраняет bcrypt-хэш пароля в коллекции admin и снимает блокировку
учётной записи. Без --password пароль читается из первой строки stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}

			a, err := openApp(deps.cfg, deps.logger, "set-admin-password")
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.admin.SetPassword(username, password); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Пароль администратора сохранён")
			return err
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "имя администратора (по умолчанию текущее)")
	cmd.Flags().StringVar(&password, "password", "", "пароль (небезопасно: виден в списке процессов)")
	return cmd
}

// readPassword читает первую строку r без завершающего перевода строки.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("ошибка чтения пароля: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("пароль не задан: укажите --password или передайте его в stdin")
	}
	return line, nil
}
