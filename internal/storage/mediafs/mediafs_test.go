package mediafs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bigkaa/techdir/internal/domain/model"
)

// writeFile создаёт файл с содержимым, создавая промежуточные директории.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "technicians"), "/uploads/technicians")
}

func TestScanFolder_ClassifiesAndSorts(t *testing.T) {
	tree := newTestTree(t)
	dir := filepath.Join(tree.Root(), "Ana")
	writeFile(t, filepath.Join(dir, "b.MP4"), "video")
	writeFile(t, filepath.Join(dir, "a.jpg"), "image")
	writeFile(t, filepath.Join(dir, "notes.txt"), "skip")
	writeFile(t, filepath.Join(dir, "c.webp"), "image2")
	writeFile(t, filepath.Join(dir, ThumbnailsDir, "thumb_b_20240101000000_abcdef.jpg"), "thumb")
	writeFile(t, filepath.Join(dir, "nested", "d.jpg"), "nested")

	descs, err := tree.ScanFolder("Ana")
	if err != nil {
		t.Fatalf("ScanFolder: %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("ожидалось 3 файла, получено %d: %+v", len(descs), descs)
	}

	names := []string{descs[0].FileName, descs[1].FileName, descs[2].FileName}
	want := []string{"a.jpg", "b.MP4", "c.webp"}
	if !slices.Equal(names, want) {
		t.Errorf("порядок файлов = %v, ожидалось %v", names, want)
	}
	if descs[0].Type != model.MediaImage || descs[1].Type != model.MediaVideo {
		t.Errorf("неверная классификация: %s, %s", descs[0].Type, descs[1].Type)
	}
	if descs[1].Thumbnail != "thumb_b_20240101000000_abcdef.jpg" {
		t.Errorf("Thumbnail для b.MP4 = %q", descs[1].Thumbnail)
	}
	if descs[0].Thumbnail != "" {
		t.Errorf("у a.jpg не должно быть миниатюры, получено %q", descs[0].Thumbnail)
	}
	if descs[0].SizeBytes != int64(len("image")) {
		t.Errorf("SizeBytes = %d", descs[0].SizeBytes)
	}
	if descs[0].BirthTime.IsZero() {
		t.Error("BirthTime не заполнено")
	}
	if descs[0].OwnerFolder != "Ana" || descs[0].AbsolutePath != filepath.Join(dir, "a.jpg") {
		t.Errorf("неверные OwnerFolder/AbsolutePath: %+v", descs[0])
	}
}

func TestScanFolder_Missing(t *testing.T) {
	tree := newTestTree(t)

	descs, err := tree.ScanFolder("Ghost")
	if err != nil {
		t.Fatalf("ScanFolder отсутствующей папки: %v", err)
	}
	if len(descs) != 0 {
		t.Errorf("ожидался пустой результат, получено %d", len(descs))
	}
}

func TestScanFolder_InvalidName(t *testing.T) {
	tree := newTestTree(t)

	for _, name := range []string{"", "..", "a/b"} {
		if _, err := tree.ScanFolder(name); !errors.Is(err, ErrInvalidFolder) {
			t.Errorf("ScanFolder(%q) = %v, ожидалась ErrInvalidFolder", name, err)
		}
	}
}

func TestFolders(t *testing.T) {
	tree := newTestTree(t)

	folders, err := tree.Folders()
	if err != nil {
		t.Fatalf("Folders для отсутствующего корня: %v", err)
	}
	if len(folders) != 0 {
		t.Errorf("ожидался пустой список, получено %v", folders)
	}

	writeFile(t, filepath.Join(tree.Root(), "Bo", "x.jpg"), "x")
	writeFile(t, filepath.Join(tree.Root(), "Ana", "y.jpg"), "y")
	writeFile(t, filepath.Join(tree.Root(), "stray.jpg"), "z")

	folders, err = tree.Folders()
	if err != nil {
		t.Fatalf("Folders: %v", err)
	}
	if !slices.Equal(folders, []string{"Ana", "Bo"}) {
		t.Errorf("Folders = %v", folders)
	}
}

func TestScanAll(t *testing.T) {
	tree := newTestTree(t)
	writeFile(t, filepath.Join(tree.Root(), "Ana", "a.jpg"), "a")
	writeFile(t, filepath.Join(tree.Root(), "Bo", "b.mov"), "b")

	descs, err := tree.ScanAll()
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("ожидалось 2 файла, получено %d", len(descs))
	}
	if descs[0].OwnerFolder != "Ana" || descs[1].OwnerFolder != "Bo" {
		t.Errorf("неверный порядок папок: %s, %s", descs[0].OwnerFolder, descs[1].OwnerFolder)
	}
}

func TestMatchThumbnail(t *testing.T) {
	thumbs := []string{
		"thumb_video_20240102000000_bbbbbb.jpg",
		"thumb_video_20240101000000_aaaaaa.jpg",
		"thumb_other.jpg",
	}
	files := []string{"video.mp4", "other.jpg"}

	got, ok := MatchThumbnail(thumbs, "video.mp4", files)
	if !ok || got != "thumb_video_20240101000000_aaaaaa.jpg" {
		t.Errorf("MatchThumbnail = %q, %v", got, ok)
	}

	if _, ok := MatchThumbnail(thumbs, "missing.mp4", files); ok {
		t.Error("для файла без миниатюры ожидалось ok=false")
	}
}

func TestMatchThumbnail_SimilarNames(t *testing.T) {
	// '2' < '_': по одному префиксу clip.mp4 получил бы миниатюру clip2
	thumbs := []string{
		"thumb_clip2_20240101000000_bbbbbb.jpg",
		"thumb_clip_20240101000000_aaaaaa.jpg",
	}
	files := []string{"clip.mp4", "clip2.mp4"}

	tests := []struct {
		file string
		want string
	}{
		{"clip.mp4", "thumb_clip_20240101000000_aaaaaa.jpg"},
		{"clip2.mp4", "thumb_clip2_20240101000000_bbbbbb.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, ok := MatchThumbnail(thumbs, tt.file, files)
			if !ok || got != tt.want {
				t.Errorf("MatchThumbnail(%q) = %q, %v; ожидалось %q", tt.file, got, ok, tt.want)
			}
		})
	}

	// Без собственной миниатюры clip.mp4 не забирает чужую
	if got, ok := MatchThumbnail(thumbs[:1], "clip.mp4", files); ok {
		t.Errorf("ожидалось ok=false, получено %q", got)
	}
}

func TestScanFolder_ThumbnailOwnership(t *testing.T) {
	tree := newTestTree(t)
	writeFile(t, filepath.Join(tree.Root(), "Ana", "clip.mp4"), "v")
	writeFile(t, filepath.Join(tree.Root(), "Ana", "clip2.mp4"), "v")
	writeFile(t, filepath.Join(tree.Root(), "Ana", "thumbnails", "thumb_clip2_20240101000000_bbbbbb.jpg"), "t")

	descs, err := tree.ScanFolder("Ana")
	if err != nil {
		t.Fatalf("ScanFolder: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("ожидалось 2 файла, получено %d", len(descs))
	}
	if descs[0].FileName != "clip.mp4" || descs[0].Thumbnail != "" {
		t.Errorf("clip.mp4: миниатюра %q, ожидалось пусто", descs[0].Thumbnail)
	}
	if descs[1].Thumbnail != "thumb_clip2_20240101000000_bbbbbb.jpg" {
		t.Errorf("clip2.mp4: миниатюра %q", descs[1].Thumbnail)
	}
}

func TestThumbnailOwner(t *testing.T) {
	files := []string{"photo.jpg", "photo_1.jpg", "photo.png", "photography.jpg"}

	tests := []struct {
		thumb string
		want  string
	}{
		{"thumb_photo.jpg", "photo.jpg"},
		{"thumb_photo_1.jpg", "photo_1.jpg"},
		{"thumb_photo.png", "photo.png"},
		{"thumb_photography.jpg", "photography.jpg"},
		{"thumb_photo_20240101000000_abcdef.jpg", "photo.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.thumb, func(t *testing.T) {
			got, ok := ThumbnailOwner(tt.thumb, files)
			if !ok || got != tt.want {
				t.Errorf("ThumbnailOwner(%q) = %q, %v; ожидалось %q", tt.thumb, got, ok, tt.want)
			}
		})
	}

	if _, ok := ThumbnailOwner("thumb_zzz.jpg", files); ok {
		t.Error("миниатюра без владельца не должна иметь owner")
	}
}

func TestOwnedThumbnails_SkipsSuffixedSibling(t *testing.T) {
	thumbs := []string{"thumb_photo.jpg", "thumb_photo_1.jpg", "thumb_photo_20240101000000_abcdef.jpg"}

	got := OwnedThumbnails(thumbs, "photo.jpg", []string{"photo_1.jpg"})
	want := []string{"thumb_photo.jpg", "thumb_photo_20240101000000_abcdef.jpg"}
	if !slices.Equal(got, want) {
		t.Errorf("OwnedThumbnails = %v, ожидалось %v", got, want)
	}

	// Без соседа photo_1.jpg миниатюра thumb_photo_1 приписывается photo.jpg
	got = OwnedThumbnails(thumbs, "photo.jpg", nil)
	if len(got) != 3 {
		t.Errorf("без соседей ожидалось 3 миниатюры, получено %v", got)
	}
}

func TestIsOrphanThumbnail(t *testing.T) {
	files := []string{"a.jpg", "clip.mp4"}

	if IsOrphanThumbnail("thumb_clip_20240101000000_abcdef.jpg", files) {
		t.Error("миниатюра clip не сирота")
	}
	if !IsOrphanThumbnail("thumb_gone.jpg", files) {
		t.Error("миниатюра gone — сирота")
	}
	if !IsOrphanThumbnail("thumb_clip2_20240101000000_abcdef.jpg", files) {
		t.Error("миниатюра удалённого clip2 — сирота")
	}
}

func TestPublicPaths(t *testing.T) {
	tree := New("/srv/uploads/technicians", "uploads/technicians/")

	if got := tree.PublicPrefix(); got != "/uploads/technicians" {
		t.Errorf("PublicPrefix = %q", got)
	}
	if got := tree.PublicPath("Ana", "a.jpg"); got != "/uploads/technicians/Ana/a.jpg" {
		t.Errorf("PublicPath = %q", got)
	}
	if got := tree.ThumbnailPublicPath("Ana", "thumb_a.jpg"); got != "/uploads/technicians/Ana/thumbnails/thumb_a.jpg" {
		t.Errorf("ThumbnailPublicPath = %q", got)
	}

	got, err := tree.PublicPathOf(filepath.Join("/srv/uploads/technicians", "Ana", ThumbnailsDir, "thumb_a.jpg"))
	if err != nil || got != "/uploads/technicians/Ana/thumbnails/thumb_a.jpg" {
		t.Errorf("PublicPathOf = %q, %v", got, err)
	}
	if _, err := tree.PublicPathOf("/etc/passwd"); !errors.Is(err, ErrOutsideTree) {
		t.Errorf("PublicPathOf вне дерева: %v", err)
	}
}

func TestResolvePublic(t *testing.T) {
	tree := New("/srv/uploads/technicians", "/uploads/technicians")

	loc, err := tree.ResolvePublic("/uploads/technicians/Ana/thumbnails/thumb_a.jpg")
	if err != nil {
		t.Fatalf("ResolvePublic: %v", err)
	}
	if loc.Folder != "Ana" || loc.Rel != "thumbnails/thumb_a.jpg" {
		t.Errorf("Location = %+v", loc)
	}
	if loc.Abs != filepath.Join("/srv/uploads/technicians", "Ana", "thumbnails", "thumb_a.jpg") {
		t.Errorf("Abs = %q", loc.Abs)
	}

	rejected := []string{
		"/uploads/other/Ana/a.jpg",
		"/uploads/technicians/../secret/a.jpg",
		"/uploads/technicians/Ana/../../../etc/passwd",
		"/uploads/technicians/Ana",
		"/uploads/technicians/",
	}
	for _, p := range rejected {
		if _, err := tree.ResolvePublic(p); !errors.Is(err, ErrOutsideTree) {
			t.Errorf("ResolvePublic(%q) = %v, ожидалась ErrOutsideTree", p, err)
		}
	}
}

func TestRemoveFile(t *testing.T) {
	tree := newTestTree(t)
	path := filepath.Join(tree.Root(), "Ana", "a.jpg")
	writeFile(t, path, "a")

	if err := tree.RemoveFile(path); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("файл должен быть удалён")
	}

	err := tree.RemoveFile(path)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("повторное удаление: %v, ожидалась os.ErrNotExist", err)
	}
}

func TestRemoveFolder(t *testing.T) {
	tree := newTestTree(t)
	writeFile(t, filepath.Join(tree.Root(), "Ana", ThumbnailsDir, "thumb_a.jpg"), "t")
	writeFile(t, filepath.Join(tree.Root(), "Ana", "a.jpg"), "a")

	existed, err := tree.RemoveFolder("Ana")
	if err != nil || !existed {
		t.Fatalf("RemoveFolder = %v, %v", existed, err)
	}
	if _, err := os.Stat(filepath.Join(tree.Root(), "Ana")); !errors.Is(err, os.ErrNotExist) {
		t.Error("папка должна быть удалена")
	}

	existed, err = tree.RemoveFolder("Ana")
	if err != nil || existed {
		t.Errorf("повторное удаление = %v, %v", existed, err)
	}
}

func TestSaveUpload(t *testing.T) {
	tree := newTestTree(t)
	data := []byte("jpeg-bytes")

	res, err := tree.SaveUpload("Ana", "my photo.JPG", bytes.NewReader(data), 1024)
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if res.FileName != "my_photo.jpg" {
		t.Errorf("FileName = %q", res.FileName)
	}
	if res.PublicPath != "/uploads/technicians/Ana/my_photo.jpg" {
		t.Errorf("PublicPath = %q", res.PublicPath)
	}
	if res.Size != int64(len(data)) {
		t.Errorf("Size = %d", res.Size)
	}
	sum := sha256.Sum256(data)
	if res.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Checksum = %q", res.Checksum)
	}
	got, err := os.ReadFile(res.AbsolutePath)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("содержимое файла не совпадает: %q, %v", got, err)
	}

	// Совпадение имени — суффикс _1
	res2, err := tree.SaveUpload("Ana", "my photo.JPG", bytes.NewReader(data), 1024)
	if err != nil {
		t.Fatalf("SaveUpload повторно: %v", err)
	}
	if res2.FileName != "my_photo_1.jpg" {
		t.Errorf("FileName при коллизии = %q", res2.FileName)
	}

	// Во временных файлах ничего не осталось
	entries, _ := os.ReadDir(filepath.Join(tree.Root(), "Ana"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("остался временный файл %s", e.Name())
		}
	}
}

func TestSaveUpload_TooLarge(t *testing.T) {
	tree := newTestTree(t)

	_, err := tree.SaveUpload("Ana", "big.jpg", strings.NewReader(strings.Repeat("x", 11)), 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("ожидалась ErrTooLarge, получено %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(tree.Root(), "Ana"))
	if len(entries) != 0 {
		t.Errorf("после отказа папка должна быть пустой, найдено %d записей", len(entries))
	}

	// Ровно лимит допускается
	if _, err := tree.SaveUpload("Ana", "ok.jpg", strings.NewReader(strings.Repeat("x", 10)), 10); err != nil {
		t.Errorf("файл размером в лимит: %v", err)
	}
}

func TestSaveUpload_InvalidFolder(t *testing.T) {
	tree := newTestTree(t)

	if _, err := tree.SaveUpload("../x", "a.jpg", strings.NewReader("a"), 0); !errors.Is(err, ErrInvalidFolder) {
		t.Errorf("ожидалась ErrInvalidFolder, получено %v", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"My Photo.JPEG", "My_Photo.jpeg"},
		{"../../etc/passwd.jpg", "passwd.jpg"},
		{`C:\Users\x\clip.mp4`, "clip.mp4"},
		{"照片-1.png", "照片-1.png"},
		{"$$$.webp", "file.webp"},
		{"no-ext", "no-ext"},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}
