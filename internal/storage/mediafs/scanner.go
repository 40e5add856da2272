package mediafs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bigkaa/techdir/internal/domain/model"
)

// Descriptor — медиафайл, найденный в папке сущности.
type Descriptor struct {
	OwnerFolder  string
	FileName     string
	Type         model.MediaType
	AbsolutePath string
	SizeBytes    int64
	BirthTime    time.Time
	// Thumbnail — имя найденной миниатюры в thumbnails/ (пусто, если нет)
	Thumbnail string
}

// ScanFolder перечисляет медиафайлы, лежащие непосредственно в папке сущности,
// в порядке имён. Подпапки (в том числе thumbnails) и файлы неподдерживаемых
// типов пропускаются. Для каждого файла ищется миниатюра (см. MatchThumbnail).
// Отсутствующая папка — пустой результат без ошибки.
func (t *Tree) ScanFolder(folder string) ([]Descriptor, error) {
	dir, err := t.FolderPath(folder)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения папки %s: %w", folder, err)
	}

	thumbs, err := t.Thumbnails(folder)
	if err != nil {
		return nil, err
	}

	var result []Descriptor
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		mediaType, ok := model.ClassifyFile(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Файл удалён между ReadDir и Stat
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("ошибка получения информации о файле %s/%s: %w", folder, e.Name(), err)
		}
		abs := filepath.Join(dir, e.Name())
		result = append(result, Descriptor{
			OwnerFolder:  folder,
			FileName:     e.Name(),
			Type:         mediaType,
			AbsolutePath: abs,
			SizeBytes:    info.Size(),
			BirthTime:    birthTime(abs, info),
		})
	}

	files := make([]string, len(result))
	for i, d := range result {
		files[i] = d.FileName
	}
	for i := range result {
		result[i].Thumbnail, _ = MatchThumbnail(thumbs, result[i].FileName, files)
	}
	return result, nil
}

// ScanAll сканирует все папки сущностей. Ошибки отдельных папок
// не прерывают обход: возвращаются найденные файлы и объединённая ошибка.
// Отсутствующий корень — пустой результат без ошибки.
func (t *Tree) ScanAll() ([]Descriptor, error) {
	folders, err := t.Folders()
	if err != nil {
		return nil, err
	}
	var (
		result []Descriptor
		errs   []error
	)
	for _, folder := range folders {
		descs, err := t.ScanFolder(folder)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result = append(result, descs...)
	}
	return result, errors.Join(errs...)
}

// Thumbnails возвращает отсортированные имена файлов в thumbnails/ папки.
// Отсутствующая папка миниатюр — пустой список.
func (t *Tree) Thumbnails(folder string) ([]string, error) {
	dir, err := t.ThumbnailsPath(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения миниатюр %s: %w", folder, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), ThumbnailPrefix) {
			names = append(names, e.Name())
		}
	}
	// os.ReadDir уже сортирует, но порядок — часть контракта
	slices.Sort(names)
	return names, nil
}

// ThumbnailPrefixFor возвращает префикс миниатюр для файла: thumb_<base>.
func ThumbnailPrefixFor(fileName string) string {
	return ThumbnailPrefix + model.BaseName(fileName)
}

// MatchThumbnail выбирает миниатюру для файла fileName среди имён thumbs:
// подходят только миниатюры, чей владелец среди files (см. ThumbnailOwner) —
// fileName. При нескольких кандидатах выбирается лексикографически
// наименьшее имя.
func MatchThumbnail(thumbs []string, fileName string, files []string) (string, bool) {
	if !slices.Contains(files, fileName) {
		files = append([]string{fileName}, files...)
	}
	best := ""
	for _, name := range thumbs {
		if owner, ok := ThumbnailOwner(name, files); ok && owner == fileName && (best == "" || name < best) {
			best = name
		}
	}
	return best, best != ""
}

// ThumbnailOwner определяет файл, которому принадлежит миниатюра:
// имя миниатюры — thumb_<base>, за которым следует конец, "." или "_".
// При нескольких подходящих файлах побеждает самое длинное base
// (миниатюра photo_1.jpg не приписывается photo.jpg), при равных base —
// файл, чьё расширение продолжает имя миниатюры (thumb_photo.png → photo.png).
func ThumbnailOwner(thumb string, files []string) (string, bool) {
	owner, bestScore := "", -1
	for _, f := range files {
		rest, ok := strings.CutPrefix(thumb, ThumbnailPrefixFor(f))
		if !ok {
			continue
		}
		if rest != "" && rest[0] != '.' && rest[0] != '_' {
			continue
		}
		score := 2 * len(model.BaseName(f))
		if ext := filepath.Ext(f); ext != "" && strings.HasPrefix(rest, ext) {
			score++
		}
		if score > bestScore {
			owner, bestScore = f, score
		}
	}
	return owner, owner != ""
}

// OwnedThumbnails возвращает миниатюры из thumbs, принадлежащие fileName
// с учётом остальных файлов папки siblings.
func OwnedThumbnails(thumbs []string, fileName string, siblings []string) []string {
	files := append([]string{fileName}, siblings...)
	var out []string
	for _, th := range thumbs {
		if owner, ok := ThumbnailOwner(th, files); ok && owner == fileName {
			out = append(out, th)
		}
	}
	return out
}

// IsOrphanThumbnail сообщает, что миниатюра не принадлежит ни одному
// файлу из files.
func IsOrphanThumbnail(thumb string, files []string) bool {
	_, ok := ThumbnailOwner(thumb, files)
	return !ok
}
