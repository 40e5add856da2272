package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Ключи известных коллекций.
const (
	CollectionTechnicians     = "technicians"
	CollectionAnnouncements   = "announcements"
	CollectionCustomerService = "customer-service"
	CollectionAdmin           = "admin"
	CollectionTechnicianViews = "technician-views"
)

// AdminRecordID — фиксированный id единственной записи коллекции admin.
const AdminRecordID = "admin"

// Schema описывает формат контейнера коллекции на диске.
type Schema struct {
	// Key — ключ коллекции (имя файла без .json)
	Key string
	// Field — имя поля верхнего уровня, содержащего записи
	Field string
	// Singleton — поле содержит один объект, а не массив
	Singleton bool
}

// schemas — реестр известных коллекций. Неизвестные ключи хранят записи в "items".
var schemas = map[string]Schema{
	CollectionTechnicians:     {Key: CollectionTechnicians, Field: "technicians"},
	CollectionAnnouncements:   {Key: CollectionAnnouncements, Field: "announcements"},
	CollectionCustomerService: {Key: CollectionCustomerService, Field: "customerService"},
	CollectionAdmin:           {Key: CollectionAdmin, Field: "admin", Singleton: true},
	CollectionTechnicianViews: {Key: CollectionTechnicianViews, Field: "views"},
}

// NormalizeKey убирает необязательный суффикс .json из ключа коллекции.
func NormalizeKey(key string) string {
	return strings.TrimSuffix(strings.TrimSpace(key), ".json")
}

// SchemaFor возвращает схему коллекции по ключу.
func SchemaFor(key string) Schema {
	key = NormalizeKey(key)
	if s, ok := schemas[key]; ok {
		return s
	}
	return Schema{Key: key, Field: "items"}
}

// Container — содержимое файла коллекции.
type Container struct {
	Schema  Schema
	Records []Record
	// Extra — прочие поля верхнего уровня, сохраняются при перезаписи
	Extra map[string]json.RawMessage
}

// DefaultContainer возвращает контейнер по умолчанию для отсутствующего файла.
// Для admin создаётся учётная запись администратора без пароля.
func DefaultContainer(key string, now time.Time) *Container {
	schema := SchemaFor(key)
	c := &Container{Schema: schema, Records: []Record{}}
	if schema.Key == CollectionAdmin {
		ts := FormatTime(now)
		c.Records = append(c.Records, Record{
			FieldID:         AdminRecordID,
			"username":      "admin",
			"passwordHash":  "",
			"lastLogin":     nil,
			"loginAttempts": json.Number("0"),
			"lockedUntil":   nil,
			FieldCreatedAt:  ts,
			FieldUpdatedAt:  ts,
		})
	}
	return c
}

// Clone возвращает глубокую копию контейнера.
func (c *Container) Clone() *Container {
	if c == nil {
		return nil
	}
	out := &Container{
		Schema:  c.Schema,
		Records: make([]Record, len(c.Records)),
	}
	for i, r := range c.Records {
		out.Records[i] = r.Clone()
	}
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// IndexOf возвращает позицию записи с указанным id или -1.
func (c *Container) IndexOf(id string) int {
	for i, r := range c.Records {
		if r.ID() == id {
			return i
		}
	}
	return -1
}
