package matching

// Settlement moves cash and shares when an order fills. Buy fills debit
// price*qty cash and credit qty shares; sell fills do the reverse. The
// matcher never checks that the owner can afford it.
type Settlement interface {
	OnBuyFill(owner, ticker string, qty int64, price float64)
	OnSellFill(owner, ticker string, qty int64, price float64)
}

// History keeps each owner's submitted orders.
type History interface {
	Record(o *Order)
}

type NopSettlement struct{}

func (NopSettlement) OnBuyFill(string, string, int64, float64)  {}
func (NopSettlement) OnSellFill(string, string, int64, float64) {}

type NopHistory struct{}

func (NopHistory) Record(*Order) {}
