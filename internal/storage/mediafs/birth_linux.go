//go:build linux

package mediafs

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// birthTime возвращает время создания файла через statx(STATX_BTIME).
// Если файловая система не сообщает btime, используется mtime.
func birthTime(path string, info os.FileInfo) time.Time {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx)
	if err == nil && stx.Mask&unix.STATX_BTIME != 0 {
		return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}
	return info.ModTime()
}
