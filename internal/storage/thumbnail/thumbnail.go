// Пакет thumbnail — генерация миниатюр медиафайлов.
//
// Для видео рисуется заглушка (градиент, значок экрана с кнопкой
// воспроизведения и надпись VIDEO); для изображений — уменьшенная копия
// с обрезкой по центру. Все файлы пишутся атомарно: temp → fsync → rename.
package thumbnail

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// Режимы именования миниатюр видео.
const (
	// NamingUnique — thumb_<base>_<yyyymmddhhmmss>_<rand6>.jpg, новый файл на каждый вызов
	NamingUnique = "unique"
	// NamingStable — thumb_<base>.jpg, существующий файл переиспользуется
	NamingStable = "stable"
)

// Prefix — префикс имени файла миниатюры.
const Prefix = "thumb_"

// ErrUnsupportedImage — исходный файл не удалось декодировать как изображение.
var ErrUnsupportedImage = errors.New("неподдерживаемый формат изображения")

// Style — параметры миниатюры.
type Style struct {
	Width   int
	Height  int
	Quality int
	Label   string
}

// DefaultVideoStyle — заглушка видео 200×200, JPEG quality 85.
func DefaultVideoStyle() Style {
	return Style{Width: 200, Height: 200, Quality: 85, Label: "VIDEO"}
}

// DefaultImageStyle — миниатюра изображения 200×200, JPEG quality 80.
func DefaultImageStyle() Style {
	return Style{Width: 200, Height: 200, Quality: 80}
}

// Synthesizer создаёт миниатюры в папке thumbnails рядом с исходным файлом.
type Synthesizer struct {
	naming string
	video  Style
	image  Style
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Synthesizer. Неизвестный режим именования трактуется как unique.
func New(naming string, logger *slog.Logger) *Synthesizer {
	if naming != NamingStable {
		naming = NamingUnique
	}
	return &Synthesizer{
		naming: naming,
		video:  DefaultVideoStyle(),
		image:  DefaultImageStyle(),
		logger: logger.With(slog.String("component", "thumbnail")),
		now:    time.Now,
	}
}

// WithClock подменяет источник времени (для тестов).
func (s *Synthesizer) WithClock(now func() time.Time) *Synthesizer {
	s.now = now
	return s
}

// Naming возвращает режим именования.
func (s *Synthesizer) Naming() string {
	return s.naming
}

// VideoName возвращает имя миниатюры видео для файла fileName.
func (s *Synthesizer) VideoName(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if s.naming == NamingStable {
		return Prefix + base + ".jpg"
	}
	stamp := s.now().UTC().Format("20060102150405")
	return Prefix + base + "_" + stamp + "_" + uuid.NewString()[:6] + ".jpg"
}

// ImageName возвращает имя миниатюры загруженного изображения: thumb_<fileName>.
func ImageName(fileName string) string {
	return Prefix + fileName
}

// SynthesizeVideo рисует заглушку для видео videoPath и возвращает имя
// созданного файла в <папка видео>/thumbnails. В режиме stable уже
// существующая миниатюра не перерисовывается.
func (s *Synthesizer) SynthesizeVideo(videoPath string) (string, error) {
	dir := filepath.Join(filepath.Dir(videoPath), "thumbnails")
	name := s.VideoName(filepath.Base(videoPath))
	dst := filepath.Join(dir, name)

	if s.naming == NamingStable {
		if _, err := os.Stat(dst); err == nil {
			return name, nil
		}
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("не удалось создать папку миниатюр: %w", err)
	}
	if err := writeJPEG(dst, RenderPlaceholder(s.video), s.video.Quality); err != nil {
		return "", err
	}

	s.logger.Debug("Миниатюра видео создана",
		slog.String("video", filepath.Base(videoPath)),
		slog.String("thumbnail", name),
	)
	return name, nil
}

// SynthesizeImage создаёт миниатюру изображения srcPath с именем
// thumb_<имя файла> и возвращает это имя.
func (s *Synthesizer) SynthesizeImage(srcPath string) (string, error) {
	dir := filepath.Join(filepath.Dir(srcPath), "thumbnails")
	name := ImageName(filepath.Base(srcPath))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("не удалось создать папку миниатюр: %w", err)
	}
	if err := ImageThumbnail(srcPath, filepath.Join(dir, name), s.image); err != nil {
		return "", err
	}
	return name, nil
}

// ImageThumbnail уменьшает изображение src до размеров style
// с обрезкой по центру и сохраняет в dst как JPEG.
func ImageThumbnail(src, dst string, style Style) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("ошибка открытия изображения: %w", err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return err
	}
	return writeJPEG(dst, Cover(img, style.Width, style.Height), style.Quality)
}

// Decode декодирует JPEG, PNG или WebP.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}
	return img, nil
}

// writeJPEG атомарно записывает изображение в dst.
func writeJPEG(dst string, img image.Image, quality int) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".thumb-*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := tmp.Name()

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: quality}); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка кодирования JPEG: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync миниатюры: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия миниатюры: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования миниатюры: %w", err)
	}
	return nil
}
