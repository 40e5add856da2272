// Пакет service — бизнес-логика каталога техников: сверка медиафайлов
// с записями, загрузка, удаление, статистика и обслуживание дерева загрузок.
package service

import "errors"

// Ошибки сервисного слоя. HTTP-слой сопоставляет их с кодами ответа.
var (
	// ErrEntityNotFound — запись сущности не найдена.
	ErrEntityNotFound = errors.New("сущность не найдена")
	// ErrFileNotFound — медиафайл отсутствует на диске.
	ErrFileNotFound = errors.New("файл не найден")
	// ErrIOFailure — ошибка файловой системы.
	ErrIOFailure = errors.New("ошибка ввода-вывода")
	// ErrInvalidPath — путь или имя папки недопустимы.
	ErrInvalidPath = errors.New("недопустимый путь")
	// ErrSyncInProgress — синхронизация уже выполняется.
	ErrSyncInProgress = errors.New("синхронизация уже выполняется")
	// ErrUnsupportedMedia — тип файла не поддерживается.
	ErrUnsupportedMedia = errors.New("неподдерживаемый тип файла")
	// ErrFileTooLarge — файл превышает допустимый размер.
	ErrFileTooLarge = errors.New("файл слишком большой")
)
