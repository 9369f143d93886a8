package models

import "time"

// User представляет зарегистрированного пользователя сервиса.
type User struct {
	UID          string    // UID пользователя (uuid)
	Username     string    // Уникальное имя пользователя
	Email        string    // Электронная почта
	PasswordHash string    // bcrypt-хэш пароля
	CreatedAt    time.Time // Момент регистрации
}

// DummyRegisterRequest используется для приёма данных запроса регистрации.
type DummyRegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`       // Электронная почта
	Username string `json:"username" validate:"required,alphanum"` // Имя пользователя
	Password string `json:"password" validate:"required,min=8"`    // Пароль (минимум 8 символов)
}

// DummyLoginRequest используется для приёма данных запроса входа.
type DummyLoginRequest struct {
	Username string `json:"username" validate:"required,alphanum"` // Имя пользователя
	Password string `json:"password" validate:"required"`          // Пароль
}
