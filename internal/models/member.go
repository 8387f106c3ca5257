package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Member struct {
	ID        int64               `db:"id" json:"id"`
	Username  string              `db:"username" json:"username"`
	Available int64               `db:"available" json:"available"`
	Held      int64               `db:"held" json:"held"`
	Rating    decimal.NullDecimal `db:"rating" json:"rating"`
	CreatedAt time.Time           `db:"created_at" json:"created_at"`
}

// Balance is the time position of a single member, in minutes.
type Balance struct {
	MemberID  int64 `json:"member_id"`
	Available int64 `json:"available"`
	Held      int64 `json:"held"`
}

// Total is always Available + Held; it is never stored.
func (b Balance) Total() int64 {
	return b.Available + b.Held
}

func (m *Member) Balance() Balance {
	return Balance{MemberID: m.ID, Available: m.Available, Held: m.Held}
}

// BalanceView is the read model returned to clients.
type BalanceView struct {
	MemberID  int64 `json:"member_id"`
	Available int64 `json:"available"`
	Held      int64 `json:"held"`
	Total     int64 `json:"total"`
}

func (b Balance) View() BalanceView {
	return BalanceView{MemberID: b.MemberID, Available: b.Available, Held: b.Held, Total: b.Total()}
}
