// stats.go — статистика медиафайлов и записей техников.
package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/docstore"
	"github.com/bigkaa/techdir/internal/storage/mediafs"
)

// MediaFile — медиафайл в отчёте статистики.
type MediaFile struct {
	ID             string          `json:"id"`
	FileName       string          `json:"fileName"`
	TechnicianName string          `json:"technicianName"`
	URL            string          `json:"url"`
	Thumbnail      *string         `json:"thumbnail"`
	Type           model.MediaType `json:"type"`
	Size           int64           `json:"size"`
	UploadedAt     time.Time       `json:"uploadedAt"`
}

// MediaCounts — сводка по файлам.
type MediaCounts struct {
	TotalFiles              int   `json:"totalFiles"`
	ImageFiles              int   `json:"imageFiles"`
	VideoFiles              int   `json:"videoFiles"`
	TotalBytes              int64 `json:"totalBytes"`
	WithoutMediaTechnicians int   `json:"withoutMediaTechnicians"`
}

// TechnicianCounts — сводка по записям техников.
type TechnicianCounts struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	WithMedia    int `json:"withMedia"`
	WithoutMedia int `json:"withoutMedia"`
}

// MediaStats — отчёт статистики.
type MediaStats struct {
	MediaStats      MediaCounts      `json:"mediaStats"`
	TechnicianStats TechnicianCounts `json:"technicianStats"`
	// AllMediaFiles — все медиафайлы, новые первыми
	AllMediaFiles []MediaFile `json:"allMediaFiles"`
}

// StatsService — сервис статистики.
type StatsService struct {
	store *docstore.Store
	tree  *mediafs.Tree
}

// NewStatsService создаёт сервис статистики.
func NewStatsService(store *docstore.Store, tree *mediafs.Tree) *StatsService {
	return &StatsService{store: store, tree: tree}
}

// Collect собирает статистику по дереву загрузок и коллекции техников.
// Время загрузки файла — время создания (birth time), если ФС его сообщает.
func (s *StatsService) Collect(ctx context.Context) (*MediaStats, error) {
	descs, err := s.tree.ScanAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &MediaStats{AllMediaFiles: make([]MediaFile, 0, len(descs))}
	for _, d := range descs {
		stats.MediaStats.TotalFiles++
		stats.MediaStats.TotalBytes += d.SizeBytes
		if d.Type == model.MediaImage {
			stats.MediaStats.ImageFiles++
		} else {
			stats.MediaStats.VideoFiles++
		}

		var thumb *string
		if d.Thumbnail != "" {
			p := s.tree.ThumbnailPublicPath(d.OwnerFolder, d.Thumbnail)
			thumb = &p
		}
		stats.AllMediaFiles = append(stats.AllMediaFiles, MediaFile{
			ID:             "technician_" + d.OwnerFolder + "_" + d.FileName,
			FileName:       d.FileName,
			TechnicianName: d.OwnerFolder,
			URL:            s.tree.PublicPath(d.OwnerFolder, d.FileName),
			Thumbnail:      thumb,
			Type:           d.Type,
			Size:           d.SizeBytes,
			UploadedAt:     d.BirthTime.UTC(),
		})
	}
	// Новые первыми; при равном времени — по URL
	slices.SortStableFunc(stats.AllMediaFiles, func(a, b MediaFile) int {
		if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.URL, b.URL)
	})

	techs, err := s.store.FindAll(model.CollectionTechnicians, nil)
	if err != nil {
		return nil, err
	}
	for _, t := range techs {
		stats.TechnicianStats.Total++
		if t.Bool("isActive") {
			stats.TechnicianStats.Active++
		}
		media, err := model.MediaOf(t)
		if err == nil && len(media) > 0 {
			stats.TechnicianStats.WithMedia++
		} else {
			stats.TechnicianStats.WithoutMedia++
		}
	}
	stats.MediaStats.WithoutMediaTechnicians = stats.TechnicianStats.WithoutMedia
	return stats, nil
}
