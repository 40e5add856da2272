package mediafs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// ErrTooLarge — размер загружаемых данных превышает лимит.
var ErrTooLarge = errors.New("файл превышает допустимый размер")

// maxBaseNameRunes — ограничение длины имени файла без расширения.
const maxBaseNameRunes = 100

// SaveResult — результат сохранения загруженного файла.
type SaveResult struct {
	// FileName — итоговое имя файла в папке сущности
	FileName string
	// AbsolutePath — путь на диске
	AbsolutePath string
	// PublicPath — публичный путь файла
	PublicPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого
	Checksum string
}

// SaveUpload записывает данные из reader в папку сущности, создавая её
// при необходимости. Имя файла очищается от небезопасных символов;
// при совпадении с существующим файлом добавляется суффикс _N.
// Данные больше maxBytes (если > 0) отклоняются с ErrTooLarge.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (t *Tree) SaveUpload(folder, fileName string, reader io.Reader, maxBytes int64) (*SaveResult, error) {
	dir, err := t.FolderPath(folder)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать папку %s: %w", folder, err)
	}

	f, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	src := reader
	if maxBytes > 0 {
		src = io.LimitReader(reader, maxBytes+1)
	}
	size, err := io.Copy(f, io.TeeReader(src, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if maxBytes > 0 && size > maxBytes {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: больше %d байт", ErrTooLarge, maxBytes)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Выбор свободного имени и rename под мьютексом дерева
	t.mu.Lock()
	defer t.mu.Unlock()

	finalName, err := availableName(dir, SanitizeFileName(fileName))
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	fullPath := filepath.Join(dir, finalName)
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		FileName:     finalName,
		AbsolutePath: fullPath,
		PublicPath:   t.PublicPath(folder, finalName),
		Size:         size,
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// availableName возвращает name или <base>_<N><ext>, не занятое в dir.
func availableName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; ; n++ {
		_, err := os.Lstat(filepath.Join(dir, candidate))
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("ошибка проверки имени %s: %w", candidate, err)
		}
		candidate = base + "_" + strconv.Itoa(n) + ext
	}
}

// SanitizeFileName убирает небезопасные символы из имени файла.
// Оставляет буквы и цифры любых алфавитов, дефис, подчёркивание и точку
// расширения; пробелы заменяются подчёркиванием.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder
	runes := 0
	for _, r := range base {
		if runes >= maxBaseNameRunes {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		default:
			continue
		}
		runes++
	}
	cleanExt := strings.Map(func(r rune) rune {
		if r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, ext)

	if b.Len() == 0 {
		return "file" + cleanExt
	}
	return b.String() + cleanExt
}
