package optimistic

import (
	"fmt"

	"github.com/google/uuid"
)

// IDSource, optimistic entity'ler için geçici ID üretir.
// Gizli bir global yerine enjekte edilir; testler deterministik ID verebilir.
type IDSource interface {
	NewTempID() (string, error)
}

// IDSourceFunc, bir fonksiyonu IDSource'a çevirir.
type IDSourceFunc func() (string, error)

func (f IDSourceFunc) NewTempID() (string, error) { return f() }

// UUIDSource, crypto/rand tabanlı UUIDv4 ile çakışmaya dayanıklı ID üretir.
type UUIDSource struct {
	Prefix string
}

// NewTempID, "<prefix><uuid>" formatında bir ID döner.
func (s UUIDSource) NewTempID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate temp id: %w", err)
	}
	return s.Prefix + id.String(), nil
}
