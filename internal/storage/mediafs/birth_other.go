//go:build !linux

package mediafs

import (
	"os"
	"time"
)

// birthTime на платформах без statx возвращает mtime.
func birthTime(_ string, info os.FileInfo) time.Time {
	return info.ModTime()
}
