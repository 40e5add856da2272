// admin.go — учётная запись администратора в singleton-коллекции admin.
//
// Пароль хранится как bcrypt-хэш. После MaxLoginAttempts неудачных
// проверок подряд учётная запись блокируется на LockDuration.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/docstore"
)

const (
	// MaxLoginAttempts — число неудачных попыток до блокировки.
	MaxLoginAttempts = 5
	// LockDuration — длительность блокировки учётной записи.
	LockDuration = 15 * time.Minute
	// MinPasswordLength — минимальная длина пароля администратора.
	MinPasswordLength = 8
)

// Ошибки учётной записи администратора.
var (
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
	ErrAccountLocked      = errors.New("учётная запись временно заблокирована")
	ErrPasswordNotSet     = errors.New("пароль администратора не задан")
	ErrWeakPassword       = errors.New("пароль слишком короткий")
)

// AdminService — проверка и смена пароля администратора.
type AdminService struct {
	store  *docstore.Store
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

// NewAdminService создаёт сервис учётной записи администратора.
func NewAdminService(store *docstore.Store, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:  store,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: logger.With(slog.String("component", "admin")),
	}
}

// WithCost задаёт стоимость bcrypt (в тестах — bcrypt.MinCost).
func (s *AdminService) WithCost(cost int) *AdminService {
	s.cost = cost
	return s
}

// WithClock подменяет источник времени.
func (s *AdminService) WithClock(now func() time.Time) *AdminService {
	s.now = now
	return s
}

// SetPassword задаёт имя и пароль администратора, сбрасывая блокировку.
// Пустое имя оставляет текущее.
func (s *AdminService) SetPassword(username, password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: минимум %d символов", ErrWeakPassword, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("ошибка хэширования пароля: %w", err)
	}
	username = strings.TrimSpace(username)

	_, err = s.store.Modify(model.CollectionAdmin, model.AdminRecordID, func(rec model.Record) (bool, error) {
		if username != "" {
			rec["username"] = username
		}
		rec["passwordHash"] = string(hash)
		rec["loginAttempts"] = 0
		rec["lockedUntil"] = nil
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения пароля: %w", err)
	}
	s.logger.Info("Пароль администратора изменён", slog.String("username", username))
	return nil
}

// HasPassword сообщает, задан ли пароль администратора.
func (s *AdminService) HasPassword() (bool, error) {
	rec, err := s.store.FindByID(model.CollectionAdmin, model.AdminRecordID)
	if err != nil {
		return false, err
	}
	return rec.String("passwordHash") != "", nil
}

// Verify проверяет имя и пароль. Успешная проверка сбрасывает счётчик
// попыток и фиксирует lastLogin, неудачная увеличивает счётчик.
func (s *AdminService) Verify(username, password string) error {
	var verifyErr error
	now := s.now().UTC()

	_, err := s.store.Modify(model.CollectionAdmin, model.AdminRecordID, func(rec model.Record) (bool, error) {
		hash := rec.String("passwordHash")
		if hash == "" {
			verifyErr = ErrPasswordNotSet
			return false, nil
		}
		if until, err := time.Parse(model.TimeLayout, rec.String("lockedUntil")); err == nil && now.Before(until) {
			verifyErr = ErrAccountLocked
			return false, nil
		}

		if username != rec.String("username") ||
			bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			attempts, _ := rec.Number("loginAttempts")
			n := int(attempts) + 1
			if n >= MaxLoginAttempts {
				rec["lockedUntil"] = model.FormatTime(now.Add(LockDuration))
				n = 0
				s.logger.Warn("Учётная запись администратора заблокирована",
					slog.String("until", rec.String("lockedUntil")),
				)
			}
			rec["loginAttempts"] = n
			verifyErr = ErrInvalidCredentials
			return true, nil
		}

		rec["loginAttempts"] = 0
		rec["lockedUntil"] = nil
		rec["lastLogin"] = model.FormatTime(now)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return verifyErr
}
