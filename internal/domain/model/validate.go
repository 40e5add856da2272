package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate — общий экземпляр валидатора (потокобезопасен, кэширует структуры).
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// foldername — значение пригодно как имя папки медиа
	_ = v.RegisterValidation("foldername", func(fl validator.FieldLevel) bool {
		return IsValidFolderName(fl.Field().String())
	})
	return v
}

// IsValidFolderName проверяет, что имя можно использовать как один
// элемент пути внутри дерева загрузок.
func IsValidFolderName(name string) bool {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

// ValidationError — ошибка валидации payload с перечнем полей.
type ValidationError struct {
	Fields []string
	msg    string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// Validate проверяет payload по тегам validate.
// Возвращает *ValidationError при нарушении правил.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("ошибка валидации: %w", err)
	}
	ve := &ValidationError{}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, fe.Field())
		parts = append(parts, fmt.Sprintf("%s: правило %s", fe.Field(), fe.Tag()))
	}
	ve.msg = "некорректные данные: " + strings.Join(parts, "; ")
	return ve
}
