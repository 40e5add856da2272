// Пакет mediafs — дерево медиафайлов сущностей на диске.
//
// Раскладка: <root>/<папка сущности>/<файл> и
// <root>/<папка сущности>/thumbnails/thumb_<base>[...].<ext>.
// Имя папки — человекочитаемое имя сущности (nickname), не id.
// Публичные пути формируются как <publicPrefix>/<папка>/<файл>.
package mediafs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bigkaa/techdir/internal/domain/model"
)

// ThumbnailsDir — зарезервированная подпапка миниатюр внутри папки сущности.
const ThumbnailsDir = "thumbnails"

// ThumbnailPrefix — префикс имени файла миниатюры.
const ThumbnailPrefix = "thumb_"

var (
	// ErrInvalidFolder — имя папки не может быть элементом пути.
	ErrInvalidFolder = errors.New("недопустимое имя папки")
	// ErrOutsideTree — публичный путь не принадлежит дереву загрузок.
	ErrOutsideTree = errors.New("путь вне дерева загрузок")
)

// Tree — дерево папок сущностей.
type Tree struct {
	// root — корневая директория дерева (например, public/uploads/technicians)
	root string
	// publicPrefix — URL-префикс root (например, /uploads/technicians)
	publicPrefix string
	// mu сериализует выбор имён при сохранении загрузок
	mu sync.Mutex
}

// Location — файл дерева, полученный из публичного пути.
type Location struct {
	// Folder — папка сущности
	Folder string
	// Rel — путь внутри папки (через "/"), например "photo.jpg"
	// или "thumbnails/thumb_photo.jpg"
	Rel string
	// Abs — путь на диске
	Abs string
}

// New создаёт Tree. Директория root может ещё не существовать:
// неинициализированное дерево — допустимое холодное состояние.
func New(root, publicPrefix string) *Tree {
	return &Tree{
		root:         root,
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
	}
}

// Root возвращает корневую директорию дерева.
func (t *Tree) Root() string {
	return t.root
}

// PublicPrefix возвращает URL-префикс дерева.
func (t *Tree) PublicPrefix() string {
	return t.publicPrefix
}

// FolderPath возвращает путь к папке сущности на диске.
func (t *Tree) FolderPath(folder string) (string, error) {
	if !model.IsValidFolderName(folder) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFolder, folder)
	}
	return filepath.Join(t.root, folder), nil
}

// ThumbnailsPath возвращает путь к папке миниатюр сущности.
func (t *Tree) ThumbnailsPath(folder string) (string, error) {
	dir, err := t.FolderPath(folder)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ThumbnailsDir), nil
}

// PublicPath возвращает публичный путь файла из папки сущности.
// Пример: ("Ana", "photo.jpg") → "/uploads/technicians/Ana/photo.jpg"
func (t *Tree) PublicPath(folder, fileName string) string {
	return t.publicPrefix + "/" + folder + "/" + fileName
}

// ThumbnailPublicPath возвращает публичный путь миниатюры.
func (t *Tree) ThumbnailPublicPath(folder, thumbName string) string {
	return t.publicPrefix + "/" + folder + "/" + ThumbnailsDir + "/" + thumbName
}

// PublicPathOf возвращает публичный путь для абсолютного пути внутри дерева.
func (t *Tree) PublicPathOf(abs string) (string, error) {
	rel, err := filepath.Rel(t.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s", ErrOutsideTree, filepath.Base(abs))
	}
	return t.publicPrefix + "/" + filepath.ToSlash(rel), nil
}

// ResolvePublic преобразует публичный путь в путь на диске.
// Пути с другим префиксом и неканонические пути отклоняются.
func (t *Tree) ResolvePublic(public string) (Location, error) {
	rest, ok := strings.CutPrefix(public, t.publicPrefix+"/")
	if !ok {
		return Location{}, fmt.Errorf("%w: %q", ErrOutsideTree, public)
	}
	// Любые "..", "." и двойные слэши делают путь неканоническим
	cleaned := strings.TrimPrefix(path.Clean("/"+rest), "/")
	folder, rel, found := strings.Cut(cleaned, "/")
	if cleaned != rest || !found || rel == "" || !model.IsValidFolderName(folder) {
		return Location{}, fmt.Errorf("%w: %q", ErrOutsideTree, public)
	}
	return Location{
		Folder: folder,
		Rel:    rel,
		Abs:    filepath.Join(t.root, folder, filepath.FromSlash(rel)),
	}, nil
}

// Folders возвращает имена папок сущностей в лексикографическом порядке.
// Отсутствующий корень — пустой список без ошибки.
func (t *Tree) Folders() ([]string, error) {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения корня загрузок: %w", err)
	}
	var folders []string
	for _, e := range entries {
		if e.IsDir() && model.IsValidFolderName(e.Name()) {
			folders = append(folders, e.Name())
		}
	}
	return folders, nil
}

// RemoveFile удаляет файл. Для отсутствующего файла возвращает ошибку,
// удовлетворяющую errors.Is(err, os.ErrNotExist).
func (t *Tree) RemoveFile(abs string) error {
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("файл не найден %s: %w", filepath.Base(abs), err)
		}
		return fmt.Errorf("ошибка удаления файла %s: %w", filepath.Base(abs), err)
	}
	return nil
}

// RemoveFolder рекурсивно удаляет папку сущности.
// Возвращает existed=false, если папки не было.
func (t *Tree) RemoveFolder(folder string) (existed bool, err error) {
	dir, err := t.FolderPath(folder)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки папки %s: %w", folder, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return true, fmt.Errorf("ошибка удаления папки %s: %w", folder, err)
	}
	return true, nil
}
