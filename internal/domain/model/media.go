package model

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// MediaType — тип медиафайла.
type MediaType string

const (
	// MediaImage — изображение
	MediaImage MediaType = "image"
	// MediaVideo — видео
	MediaVideo MediaType = "video"
)

// Поддерживаемые расширения (в нижнем регистре).
var (
	imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
	videoExtensions = map[string]bool{".mp4": true, ".webm": true, ".mov": true}
)

// ClassifyFile определяет тип медиа по расширению имени файла
// без учёта регистра. ok=false для неподдерживаемых файлов.
func ClassifyFile(name string) (MediaType, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case imageExtensions[ext]:
		return MediaImage, true
	case videoExtensions[ext]:
		return MediaVideo, true
	}
	return "", false
}

// BaseName возвращает имя файла без расширения.
func BaseName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// MediaItem — медиафайл, встроенный в запись техника.
type MediaItem struct {
	Type        MediaType `json:"type"`
	Path        string    `json:"path"`
	Thumbnail   string    `json:"thumbnail"`
	Description string    `json:"description,omitempty"`
	SortOrder   int       `json:"sortOrder"`
}

// MediaOf возвращает медиа записи. Отсутствующее поле — пустой список.
func MediaOf(r Record) ([]MediaItem, error) {
	raw, ok := r[FieldMedia]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации media: %w", err)
	}
	var items []MediaItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("некорректное поле media: %w", err)
	}
	return items, nil
}

// SetMedia заменяет поле media записи, сохраняя JSON-представление значений.
func (r Record) SetMedia(items []MediaItem) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		m := map[string]any{
			"type":      string(item.Type),
			"path":      item.Path,
			"thumbnail": item.Thumbnail,
			"sortOrder": json.Number(strconv.Itoa(item.SortOrder)),
		}
		if item.Description != "" {
			m["description"] = item.Description
		}
		out = append(out, m)
	}
	r[FieldMedia] = out
}

// Resequence переназначает sortOrder подряд начиная с 1 в текущем порядке.
func Resequence(items []MediaItem) []MediaItem {
	for i := range items {
		items[i].SortOrder = i + 1
	}
	return items
}

// IsContiguous проверяет, что sortOrder образует последовательность 1..N.
func IsContiguous(items []MediaItem) bool {
	for i, item := range items {
		if item.SortOrder != i+1 {
			return false
		}
	}
	return true
}

// mediaLabels — подписи типов медиа для автоматических описаний.
var mediaLabels = map[MediaType]string{
	MediaImage: "照片",
	MediaVideo: "视频",
}

// MediaDescription формирует описание медиа из имени владельца и типа,
// например "Ana的照片".
func MediaDescription(ownerName string, t MediaType) string {
	return ownerName + "的" + mediaLabels[t]
}
