package codec

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/techdir/internal/domain/model"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "data")).WithClock(func() time.Time { return fixedNow })
}

// TestRead_AbsentFileMaterializesDefault проверяет создание контейнера по умолчанию.
func TestRead_AbsentFileMaterializesDefault(t *testing.T) {
	c := newTestCodec(t)

	container, err := c.Read("technicians")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if len(container.Records) != 0 {
		t.Errorf("ожидалась пустая коллекция, получено %d записей", len(container.Records))
	}

	data, err := os.ReadFile(c.Path("technicians"))
	if err != nil {
		t.Fatalf("файл коллекции не создан: %v", err)
	}
	var top map[string]any
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatalf("невалидный JSON на диске: %v", err)
	}
	arr, ok := top["technicians"].([]any)
	if !ok || len(arr) != 0 {
		t.Errorf("ожидалось поле technicians: [], получено %s", data)
	}
}

func TestRead_DefaultFieldNames(t *testing.T) {
	c := newTestCodec(t)
	for key, field := range map[string]string{
		"announcements":         "announcements",
		"customer-service.json": "customerService",
		"misc":                  "items",
	} {
		if _, err := c.Read(key); err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		data, _ := os.ReadFile(c.Path(key))
		if !strings.Contains(string(data), `"`+field+`"`) {
			t.Errorf("%s: в файле нет поля %q: %s", key, field, data)
		}
	}
}

func TestRead_AdminSingleton(t *testing.T) {
	c := newTestCodec(t)

	container, err := c.Read("admin")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if len(container.Records) != 1 || container.Records[0].String("username") != "admin" {
		t.Fatalf("admin по умолчанию: %+v", container.Records)
	}

	data, _ := os.ReadFile(c.Path("admin"))
	var top map[string]any
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatal(err)
	}
	if _, ok := top["admin"].(map[string]any); !ok {
		t.Errorf("admin должен храниться объектом: %s", data)
	}
}

// TestWriteAndRead проверяет сохранение записей и чисел без потерь.
func TestWriteAndRead(t *testing.T) {
	c := newTestCodec(t)
	rec, err := model.NormalizeFields(map[string]any{"id": "a1", "nickname": "Ana", "age": 25, "big": int64(9007199254740993)})
	if err != nil {
		t.Fatal(err)
	}
	container := model.DefaultContainer("technicians", fixedNow)
	container.Records = append(container.Records, rec)

	if err := c.Write("technicians", container); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	read, err := c.Read("technicians")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if len(read.Records) != 1 || read.Records[0].ID() != "a1" {
		t.Fatalf("прочитано: %+v", read.Records)
	}
	if n, _ := read.Records[0]["big"].(json.Number); n.String() != "9007199254740993" {
		t.Errorf("большое число потеряло точность: %v", read.Records[0]["big"])
	}

	// Временный файл не должен оставаться после записи
	if _, err := os.Stat(c.Path("technicians") + ".tmp"); !os.IsNotExist(err) {
		t.Error("временный файл остался после записи")
	}
}

func TestWrite_PreservesExtraFields(t *testing.T) {
	c := newTestCodec(t)
	if err := os.MkdirAll(c.Dir(), 0o750); err != nil {
		t.Fatal(err)
	}
	raw := `{"version": 3, "technicians": [{"id": "x"}]}`
	if err := os.WriteFile(c.Path("technicians"), []byte(raw), 0o640); err != nil {
		t.Fatal(err)
	}

	container, err := c.Read("technicians")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if err := c.Write("technicians", container); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	data, _ := os.ReadFile(c.Path("technicians"))
	var top map[string]any
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatal(err)
	}
	if top["version"] != float64(3) {
		t.Errorf("поле version потеряно: %s", data)
	}
}

// TestRead_Malformed проверяет, что повреждённый файл не подменяется умолчанием.
func TestRead_Malformed(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"обрезанный JSON", `{"technicians": [`},
		{"пустой файл", ``},
		{"массив вместо объекта", `[]`},
		{"поле не массив", `{"technicians": "oops"}`},
		{"элемент не объект", `{"technicians": [1]}`},
		{"null элемент", `{"technicians": [null]}`},
	}
	for _, tc := range cases {
		content := tc.content
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCodec(t)
			if err := os.MkdirAll(c.Dir(), 0o750); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(c.Path("technicians"), []byte(content), 0o640); err != nil {
				t.Fatal(err)
			}

			_, err := c.Read("technicians")
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("ожидалась ErrMalformed, получено %v", err)
			}

			data, _ := os.ReadFile(c.Path("technicians"))
			if string(data) != content {
				t.Error("повреждённый файл был перезаписан")
			}
		})
	}
}

func TestRead_MissingFieldIsEmpty(t *testing.T) {
	c := newTestCodec(t)
	if err := os.MkdirAll(c.Dir(), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.Path("technicians"), []byte(`{}`), 0o640); err != nil {
		t.Fatal(err)
	}
	container, err := c.Read("technicians")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if container.Records == nil || len(container.Records) != 0 {
		t.Errorf("ожидалась пустая (не nil) коллекция: %#v", container.Records)
	}
}

func TestRead_IOError(t *testing.T) {
	c := newTestCodec(t)
	// Директория на месте файла коллекции — ошибка чтения, не "отсутствует"
	if err := os.MkdirAll(c.Path("technicians"), 0o750); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read("technicians"); !errors.Is(err, ErrIO) {
		t.Errorf("ожидалась ErrIO, получено %v", err)
	}
}

func TestKeys(t *testing.T) {
	c := newTestCodec(t)
	keys, err := c.Keys()
	if err != nil || len(keys) != 0 {
		t.Fatalf("Keys() для отсутствующей директории = %v, %v", keys, err)
	}
	for _, k := range []string{"technicians", "admin"} {
		if _, err := c.Read(k); err != nil {
			t.Fatal(err)
		}
	}
	keys, err = c.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "admin" || keys[1] != "technicians" {
		t.Errorf("Keys() = %v", keys)
	}
}
