package docstore

import (
	"errors"

	"github.com/bigkaa/techdir/internal/storage/codec"
)

// Ошибки хранилища документов.
var (
	// ErrNotFound — запись с указанным id отсутствует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — запись с таким id уже есть, либо singleton-коллекция уже заполнена.
	ErrConflict = errors.New("конфликт записи")
	// ErrMalformed — файл коллекции повреждён.
	ErrMalformed = codec.ErrMalformed
	// ErrIO — ошибка файловой системы.
	ErrIO = codec.ErrIO
)
