package domain

import "time"

// RegistrationToken — одноразовый токен для первичной регистрации агента.
type RegistrationToken struct {
	Value     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Used      bool      `json:"used"`
}

// Check объясняет, почему токен нельзя потратить в момент now.
// Порядок проверок: использован, затем истек.
func (t *RegistrationToken) Check(now time.Time) error {
	if t.Used {
		return ErrTokenUsed
	}
	if !now.Before(t.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}
