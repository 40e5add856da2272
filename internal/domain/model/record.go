// Пакет model — доменные модели techdir.
// Record — документ коллекции в виде JSON-объекта. Хранилищу известны
// только поля id/createdAt/updatedAt, остальное — полезная нагрузка.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Служебные поля записи.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldMedia     = "media"
)

// TimeLayout — формат временных меток записей (ISO-8601, UTC, миллисекунды).
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime форматирует время в TimeLayout (всегда UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Record — одна запись коллекции.
// Значения — только JSON-совместимые типы: map[string]any, []any,
// string, bool, json.Number, nil (см. NormalizeFields).
type Record map[string]any

// ID возвращает идентификатор записи или пустую строку.
func (r Record) ID() string {
	return r.String(FieldID)
}

// String возвращает строковое поле или пустую строку.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Bool возвращает булево поле (false, если поле отсутствует).
func (r Record) Bool(field string) bool {
	b, _ := r[field].(bool)
	return b
}

// Strings возвращает поле-массив строк, нестроковые элементы пропускаются.
func (r Record) Strings(field string) []string {
	raw, _ := r[field].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Number возвращает числовое поле как float64.
func (r Record) Number(field string) (float64, bool) {
	switch v := r[field].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Clone возвращает глубокую копию записи.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(tv))
		for k, item := range tv {
			m[k] = cloneValue(item)
		}
		return m
	case Record:
		return tv.Clone()
	case []any:
		s := make([]any, len(tv))
		for i, item := range tv {
			s[i] = cloneValue(item)
		}
		return s
	default:
		return v
	}
}

// NormalizeFields приводит произвольные значения к JSON-представлению
// (через сериализацию), чтобы в кэше лежали только JSON-типы.
// Числа сохраняются без потерь как json.Number.
func NormalizeFields(fields map[string]any) (Record, error) {
	if fields == nil {
		return Record{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации полей записи: %w", err)
	}
	var out Record
	if err := DecodeJSON(data, &out); err != nil {
		return nil, fmt.Errorf("ошибка нормализации полей записи: %w", err)
	}
	if out == nil {
		out = Record{}
	}
	return out, nil
}

// DecodeRecord заполняет типизированную структуру из записи.
func DecodeRecord(r Record, v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ошибка разбора записи: %w", err)
	}
	return nil
}

// DecodeJSON разбирает JSON с сохранением чисел как json.Number.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Predicate — фильтр записей для FindAll / FindWithPagination.
type Predicate func(Record) bool

// Page — страница результатов постраничной выборки.
type Page struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
}
