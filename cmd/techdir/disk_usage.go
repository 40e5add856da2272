// disk_usage.go — ёмкость файловой системы для GET /api/v1/info.
package main

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bigkaa/techdir/internal/api/handlers"
)

// getDiskUsage возвращает ёмкость файловой системы, содержащей path.
func getDiskUsage(path string) (handlers.DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return handlers.DiskUsage{}, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	available := int64(stat.Bavail) * int64(stat.Bsize)
	return handlers.DiskUsage{
		TotalBytes:     total,
		UsedBytes:      total - available,
		AvailableBytes: available,
	}, nil
}
