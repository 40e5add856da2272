// Пакет journal — журнал разрушающих операций над медиафайлами
// и сущностями каталога.
//
// Журнал — один файл JSON Lines (<data>/journal/journal.jsonl).
// Каждая строка — переход транзакции в новый статус; актуальный
// статус транзакции — статус её последней строки.
package journal

import (
	"time"
)

// OperationType — тип операции, записываемой в журнал.
type OperationType string

const (
	// OpMediaDelete — удаление одного медиафайла сущности и его миниатюр
	OpMediaDelete OperationType = "media_delete"
	// OpEntityDelete — удаление папки сущности и её записи
	OpEntityDelete OperationType = "entity_delete"
)

// TransactionStatus — статус транзакции журнала.
type TransactionStatus string

const (
	// StatusPending — транзакция начата, операция в процессе
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — транзакция успешно завершена
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — транзакция отменена
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — строка журнала.
type Entry struct {
	// TransactionID — уникальный идентификатор транзакции (UUID v4)
	TransactionID string `json:"transaction_id"`

	// Operation — тип операции
	Operation OperationType `json:"operation"`

	// Status — статус транзакции на момент записи строки
	Status TransactionStatus `json:"status"`

	// EntityID — id записи сущности
	EntityID string `json:"entity_id"`

	// Target — объект операции: публичный путь медиафайла или имя папки
	Target string `json:"target,omitempty"`

	// StartedAt — время начала транзакции (UTC)
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения (UTC); nil для pending.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Reason — причина отката
	Reason string `json:"reason,omitempty"`
}

// FileName — имя файла журнала в директории журнала.
const FileName = "journal.jsonl"
