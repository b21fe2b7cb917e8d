package economy

// Ledger is an agent's primitive economic state: cash, accumulated debt, and
// goods on hand. Money and debt never go negative; a shortfall on an
// authorized spend is converted to debt, never to negative cash.
//
// The system-wide invariant is that Σmoney − Σdebt is constant across every
// operation: trades and transfers are zero-sum, SpendWithDebt mints money and
// debt together, and RepayDebt retires both together.
type Ledger struct {
	Money     float64          `json:"money"`
	Debt      float64          `json:"debt"`
	Inventory map[Good]float64 `json:"inventory"`
}

// NewLedger creates a ledger with starting cash and no goods.
func NewLedger(money float64) *Ledger {
	if money < 0 {
		money = 0
	}
	return &Ledger{
		Money:     money,
		Inventory: make(map[Good]float64),
	}
}

// Spend debits cash only. Returns false (and changes nothing) when cash is
// insufficient; callers treat that as absence-of-effect, not an error.
func (l *Ledger) Spend(amount float64) bool {
	if amount <= 0 {
		return amount == 0
	}
	if l.Money < amount {
		return false
	}
	l.Money -= amount
	return true
}

// SpendWithDebt debits cash first and converts the shortfall to debt.
// Returns the debt minted. Only callers holding a debt authorization
// (survival consumption, minimum-production purchases, overhead) use this.
func (l *Ledger) SpendWithDebt(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	if l.Money >= amount {
		l.Money -= amount
		return 0
	}
	minted := amount - l.Money
	l.Money = 0
	l.Debt += minted
	return minted
}

// Receive credits cash. Debt is not touched here; repayment happens in the
// end-of-round sweep so the money supply stays auditable mid-round.
func (l *Ledger) Receive(amount float64) {
	if amount <= 0 {
		return
	}
	l.Money += amount
}

// RepayDebt retires as much debt as spare cash allows. Returns the amount
// repaid (money and debt both drop by it).
func (l *Ledger) RepayDebt() float64 {
	if l.Debt <= 0 || l.Money <= 0 {
		return 0
	}
	repay := l.Debt
	if l.Money < repay {
		repay = l.Money
	}
	l.Money -= repay
	l.Debt -= repay
	return repay
}

// Stock returns the on-hand quantity of a good.
func (l *Ledger) Stock(g Good) float64 {
	return l.Inventory[g]
}

// AddGood credits quantity of a good. Non-positive quantities are ignored.
func (l *Ledger) AddGood(g Good, qty float64) {
	if qty <= 0 {
		return
	}
	l.Inventory[g] += qty
}

// TakeGood removes up to qty of a good and returns the quantity actually
// taken. Stock never goes negative.
func (l *Ledger) TakeGood(g Good, qty float64) float64 {
	if qty <= 0 {
		return 0
	}
	have := l.Inventory[g]
	if have <= 0 {
		return 0
	}
	if qty > have {
		qty = have
	}
	l.Inventory[g] = have - qty
	if l.Inventory[g] == 0 {
		delete(l.Inventory, g)
	}
	return qty
}

// DrainGood removes the full stock of a good and returns it. Production
// consumes input stocks this way, and unsold labor expires this way.
func (l *Ledger) DrainGood(g Good) float64 {
	have := l.Inventory[g]
	if have <= 0 {
		return 0
	}
	delete(l.Inventory, g)
	return have
}
