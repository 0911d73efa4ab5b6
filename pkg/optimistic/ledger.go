package optimistic

import (
	"fmt"
	"sync"

	"github.com/akinalp/chatflow/pkg"
)

// State, bir optimistic kaydın yaşam döngüsü durumu.
type State string

const (
	StatePending    State = "pending"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolledBack"
)

// Record, tek bir geçici ID'nin durumu.
// RealID sadece commit sonrası dolar.
type Record struct {
	TempID string
	RealID string
	State  State
}

// Ledger, çalışma süresi boyunca görülen tüm geçici ID'leri tutar.
//
// Invariant'lar:
//   - her tempID için en fazla bir Record vardır; aynı ID ikinci kez açılamaz
//   - committed ve rolledBack terminal durumlardır, bir kez girilir
type Ledger struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewLedger, boş bir Ledger oluşturur.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]*Record)}
}

// Open, tempID için pending bir kayıt açar. ID daha önce görüldüyse hata döner.
func (l *Ledger) Open(tempID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[tempID]; exists {
		return fmt.Errorf("%w: temp id %q already used", pkg.ErrBadRequest, tempID)
	}
	l.records[tempID] = &Record{TempID: tempID, State: StatePending}
	return nil
}

// Commit, pending kaydı committed'a taşır. Kayıt pending değilse false döner.
func (l *Ledger) Commit(tempID, realID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[tempID]
	if !ok || r.State != StatePending {
		return false
	}
	r.RealID = realID
	r.State = StateCommitted
	return true
}

// RollBack, pending kaydı rolledBack'e taşır. Kayıt pending değilse false döner.
func (l *Ledger) RollBack(tempID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[tempID]
	if !ok || r.State != StatePending {
		return false
	}
	r.State = StateRolledBack
	return true
}

// Get, kaydın bir kopyasını döner.
func (l *Ledger) Get(tempID string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[tempID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Pending, hâlâ sonuçlanmamış kayıt sayısı.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, r := range l.records {
		if r.State == StatePending {
			n++
		}
	}
	return n
}
