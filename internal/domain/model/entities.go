package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Technician — типизированное представление записи коллекции technicians.
type Technician struct {
	ID            string      `json:"id"`
	Nickname      string      `json:"nickname"`
	Age           int         `json:"age"`
	Height        int         `json:"height,omitempty"`
	Weight        int         `json:"weight,omitempty"`
	Cities        []string    `json:"cities"`
	Features      string      `json:"features,omitempty"`
	IsNew         bool        `json:"isNew"`
	IsActive      bool        `json:"isActive"`
	IsRecommended bool        `json:"isRecommended"`
	Address       string      `json:"address,omitempty"`
	Latitude      float64     `json:"latitude,omitempty"`
	Longitude     float64     `json:"longitude,omitempty"`
	Area          string      `json:"area,omitempty"`
	Media         []MediaItem `json:"media"`
	CreatedAt     string      `json:"createdAt"`
	UpdatedAt     string      `json:"updatedAt"`
}

// TechnicianNameField — поле записи, совпадающее с именем папки медиа.
const TechnicianNameField = "nickname"

// TechnicianCreate — тело запроса создания техника.
type TechnicianCreate struct {
	Nickname      string   `json:"nickname" validate:"required,max=50,foldername"`
	Age           int      `json:"age" validate:"required,min=18,max=99"`
	Height        int      `json:"height,omitempty" validate:"omitempty,min=100,max=250"`
	Weight        int      `json:"weight,omitempty" validate:"omitempty,min=30,max=200"`
	Cities        []string `json:"cities" validate:"required,min=1,dive,required"`
	Features      string   `json:"features,omitempty" validate:"max=1000"`
	IsNew         *bool    `json:"isNew,omitempty"`
	IsActive      *bool    `json:"isActive,omitempty"`
	IsRecommended *bool    `json:"isRecommended,omitempty"`
	Address       string   `json:"address,omitempty" validate:"max=200"`
	Latitude      float64  `json:"latitude,omitempty" validate:"latitude"`
	Longitude     float64  `json:"longitude,omitempty" validate:"longitude"`
	Area          string   `json:"area,omitempty" validate:"max=100"`
}

// Fields возвращает поля новой записи с умолчаниями флагов и пустым media.
func (p TechnicianCreate) Fields() (map[string]any, error) {
	fields, err := toFields(p)
	if err != nil {
		return nil, err
	}
	setDefaultBool(fields, "isActive", p.IsActive, true)
	setDefaultBool(fields, "isNew", p.IsNew, false)
	setDefaultBool(fields, "isRecommended", p.IsRecommended, false)
	fields[FieldMedia] = []any{}
	return fields, nil
}

// TechnicianPatch — тело запроса частичного обновления техника.
// Поле media намеренно отсутствует: им управляет синхронизация медиа.
type TechnicianPatch struct {
	Nickname      *string   `json:"nickname,omitempty" validate:"omitempty,max=50,foldername"`
	Age           *int      `json:"age,omitempty" validate:"omitempty,min=18,max=99"`
	Height        *int      `json:"height,omitempty" validate:"omitempty,min=100,max=250"`
	Weight        *int      `json:"weight,omitempty" validate:"omitempty,min=30,max=200"`
	Cities        *[]string `json:"cities,omitempty" validate:"omitempty,min=1,dive,required"`
	Features      *string   `json:"features,omitempty" validate:"omitempty,max=1000"`
	IsNew         *bool     `json:"isNew,omitempty"`
	IsActive      *bool     `json:"isActive,omitempty"`
	IsRecommended *bool     `json:"isRecommended,omitempty"`
	Address       *string   `json:"address,omitempty" validate:"omitempty,max=200"`
	Latitude      *float64  `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude     *float64  `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Area          *string   `json:"area,omitempty" validate:"omitempty,max=100"`
}

// Fields возвращает только переданные поля.
func (p TechnicianPatch) Fields() (map[string]any, error) {
	return toFields(p)
}

// TechnicianFilter — фильтры списка техников.
type TechnicianFilter struct {
	City          string
	IsNew         *bool
	IsRecommended *bool
	IsActive      *bool
	Search        string
}

// Predicate строит предикат по заданным фильтрам.
func (f TechnicianFilter) Predicate() Predicate {
	search := strings.ToLower(f.Search)
	return func(r Record) bool {
		if f.City != "" && !slices.Contains(r.Strings("cities"), f.City) {
			return false
		}
		if f.IsNew != nil && r.Bool("isNew") != *f.IsNew {
			return false
		}
		if f.IsRecommended != nil && r.Bool("isRecommended") != *f.IsRecommended {
			return false
		}
		if f.IsActive != nil && r.Bool("isActive") != *f.IsActive {
			return false
		}
		if search != "" && !strings.Contains(strings.ToLower(r.String(TechnicianNameField)), search) {
			return false
		}
		return true
	}
}

// AnnouncementCreate — тело запроса создания объявления.
type AnnouncementCreate struct {
	Title    string `json:"title" validate:"required,max=100"`
	Content  string `json:"content" validate:"required,max=5000"`
	Type     string `json:"type,omitempty" validate:"omitempty,oneof=normal urgent"`
	Priority int    `json:"priority" validate:"min=0"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// Fields возвращает поля нового объявления.
func (p AnnouncementCreate) Fields() (map[string]any, error) {
	fields, err := toFields(p)
	if err != nil {
		return nil, err
	}
	if p.Type == "" {
		fields["type"] = "normal"
	}
	fields["priority"] = p.Priority
	setDefaultBool(fields, "isActive", p.IsActive, true)
	return fields, nil
}

// AnnouncementPatch — тело запроса частичного обновления объявления.
type AnnouncementPatch struct {
	Title    *string `json:"title,omitempty" validate:"omitempty,max=100"`
	Content  *string `json:"content,omitempty" validate:"omitempty,max=5000"`
	Type     *string `json:"type,omitempty" validate:"omitempty,oneof=normal urgent"`
	Priority *int    `json:"priority,omitempty" validate:"omitempty,min=0"`
	IsActive *bool   `json:"isActive,omitempty"`
}

// Fields возвращает только переданные поля.
func (p AnnouncementPatch) Fields() (map[string]any, error) {
	return toFields(p)
}

// CustomerServiceCreate — тело запроса создания контакта поддержки.
type CustomerServiceCreate struct {
	City          string   `json:"city" validate:"required,max=50"`
	WechatID      string   `json:"wechatId" validate:"required,max=100"`
	QRCodePath    string   `json:"qrCodePath,omitempty" validate:"max=500"`
	WorkHours     string   `json:"workHours,omitempty" validate:"max=100"`
	SupportCities []string `json:"supportCities,omitempty" validate:"omitempty,dive,required"`
	IsActive      *bool    `json:"isActive,omitempty"`
}

// Fields возвращает поля нового контакта.
func (p CustomerServiceCreate) Fields() (map[string]any, error) {
	fields, err := toFields(p)
	if err != nil {
		return nil, err
	}
	setDefaultBool(fields, "isActive", p.IsActive, true)
	return fields, nil
}

// CustomerServicePatch — тело запроса частичного обновления контакта.
type CustomerServicePatch struct {
	City          *string   `json:"city,omitempty" validate:"omitempty,max=50"`
	WechatID      *string   `json:"wechatId,omitempty" validate:"omitempty,max=100"`
	QRCodePath    *string   `json:"qrCodePath,omitempty" validate:"omitempty,max=500"`
	WorkHours     *string   `json:"workHours,omitempty" validate:"omitempty,max=100"`
	SupportCities *[]string `json:"supportCities,omitempty" validate:"omitempty,dive,required"`
	IsActive      *bool     `json:"isActive,omitempty"`
}

// Fields возвращает только переданные поля.
func (p CustomerServicePatch) Fields() (map[string]any, error) {
	return toFields(p)
}

// CustomerServiceForCity строит предикат выбора активных контактов для города.
// Пустой город — все активные контакты.
func CustomerServiceForCity(city string) Predicate {
	return func(r Record) bool {
		if !r.Bool("isActive") {
			return false
		}
		if city == "" {
			return true
		}
		return r.String("city") == city || slices.Contains(r.Strings("supportCities"), city)
	}
}

// toFields сериализует payload в map, опуская непереданные поля.
func toFields(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации payload: %w", err)
	}
	var fields map[string]any
	if err := DecodeJSON(data, &fields); err != nil {
		return nil, fmt.Errorf("ошибка разбора payload: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func setDefaultBool(fields map[string]any, name string, v *bool, def bool) {
	if v == nil {
		fields[name] = def
		return
	}
	fields[name] = *v
}
