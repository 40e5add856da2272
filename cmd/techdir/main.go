// Точка входа techdir — каталога техников с документным хранилищем
// JSON-коллекций и сверкой медиафайлов.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newCmdDeps()).Execute(); err != nil {
		os.Exit(1)
	}
}
