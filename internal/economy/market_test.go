package economy

import (
	"math"
	"testing"
)

func TestFillBudgetLimited(t *testing.T) {
	b := NewBook("steel")
	b.PostAsk(1, 2, 1) // 2 units at price 1
	b.PostAsk(2, 5, 3) // 5 units at price 3

	trades := b.Fill([]Offer{{Trader: 9, Good: "steel", Quantity: 6, Budget: 10, Side: Buy}})
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2: %+v", len(trades), trades)
	}

	first, second := trades[0], trades[1]
	if first.Seller != 1 || first.Price != 1 || math.Abs(first.Quantity-2) > eps {
		t.Fatalf("first trade = %+v, want 2 units from seller 1 at price 1", first)
	}
	if second.Seller != 2 || second.Price != 3 {
		t.Fatalf("second trade = %+v, want seller 2 at price 3", second)
	}
	// Budget 10 minus 2 spent on the cheap ask leaves 8, buying 8/3 units.
	if math.Abs(second.Quantity-8.0/3) > eps {
		t.Fatalf("second trade quantity = %v, want %v", second.Quantity, 8.0/3)
	}

	var spend, qty float64
	for _, tr := range trades {
		spend += tr.Cost
		qty += tr.Quantity
	}
	if math.Abs(spend-10) > eps {
		t.Fatalf("total spend = %v, want 10", spend)
	}
	if math.Abs(qty-(2+8.0/3)) > eps {
		t.Fatalf("total quantity = %v, want %v", qty, 2+8.0/3)
	}
	if math.Abs(b.Traded-qty) > eps {
		t.Fatalf("book traded volume = %v, want %v", b.Traded, qty)
	}
}

func TestFillCheapestFirst(t *testing.T) {
	b := NewBook("grain")
	b.PostAsk(1, 10, 5)
	b.PostAsk(2, 10, 2)
	b.PostAsk(3, 10, 8)

	trades := b.Fill([]Offer{{Trader: 9, Good: "grain", Quantity: 25, Budget: 1000, Side: Buy}})
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	if trades[0].Seller != 2 || trades[1].Seller != 1 || trades[2].Seller != 3 {
		t.Fatalf("fill order %d,%d,%d, want sellers 2,1,3 by ascending price",
			trades[0].Seller, trades[1].Seller, trades[2].Seller)
	}
	// Last ask only partially consumed: 25 - 10 - 10 = 5.
	if math.Abs(trades[2].Quantity-5) > eps {
		t.Fatalf("final fill = %v, want 5", trades[2].Quantity)
	}
}

func TestFillTieBreakByPostingOrder(t *testing.T) {
	b := NewBook("grain")
	b.PostAsk(7, 4, 2)
	b.PostAsk(5, 4, 2)
	b.PostAsk(6, 4, 2)

	trades := b.Fill([]Offer{{Trader: 9, Good: "grain", Quantity: 5, Budget: 100, Side: Buy}})
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	if trades[0].Seller != 7 || trades[1].Seller != 5 || trades[2].Seller != 6 {
		t.Fatalf("equal-price fills went to %d,%d,%d, want posting order 7,5,6",
			trades[0].Seller, trades[1].Seller, trades[2].Seller)
	}
}

func TestFillBuyersInOrder(t *testing.T) {
	b := NewBook("fuel")
	b.PostAsk(1, 3, 2)

	trades := b.Fill([]Offer{
		{Trader: 10, Good: "fuel", Quantity: 2, Budget: 100, Side: Buy},
		{Trader: 11, Good: "fuel", Quantity: 2, Budget: 100, Side: Buy},
	})
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].Buyer != 10 || math.Abs(trades[0].Quantity-2) > eps {
		t.Fatalf("first buyer got %+v, want full 2 units for buyer 10", trades[0])
	}
	// Second buyer takes what is left.
	if trades[1].Buyer != 11 || math.Abs(trades[1].Quantity-1) > eps {
		t.Fatalf("second buyer got %+v, want remaining 1 unit", trades[1])
	}
}

func TestFillLimitPrice(t *testing.T) {
	b := NewBook("fuel")
	b.PostAsk(1, 2, 1)
	b.PostAsk(2, 2, 5)

	trades := b.Fill([]Offer{{Trader: 9, Good: "fuel", Quantity: 4, Budget: 100, Price: 3, Side: Buy}})
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1 (ask above limit must not fill)", len(trades))
	}
	if trades[0].Price != 1 {
		t.Fatalf("filled at %v, want 1", trades[0].Price)
	}

	// A zero limit is a market order and walks every ask.
	b.Reset()
	b.PostAsk(1, 2, 1)
	b.PostAsk(2, 2, 5)
	trades = b.Fill([]Offer{{Trader: 9, Good: "fuel", Quantity: 4, Budget: 100, Side: Buy}})
	if len(trades) != 2 {
		t.Fatalf("market order got %d trades, want 2", len(trades))
	}
}

func TestFillRejectsEmptyBids(t *testing.T) {
	b := NewBook("fuel")
	b.PostAsk(1, 5, 2)

	trades := b.Fill([]Offer{
		{Trader: 9, Good: "fuel", Quantity: 0, Budget: 10, Side: Buy},
		{Trader: 9, Good: "fuel", Quantity: 5, Budget: 0, Side: Buy},
		{Trader: 9, Good: "fuel", Quantity: 5, Budget: 10, Side: Sell},
	})
	if len(trades) != 0 {
		t.Fatalf("got %d trades from degenerate bids, want 0", len(trades))
	}
	if sup := b.Supply(); math.Abs(sup-5) > eps {
		t.Fatalf("supply = %v, want untouched 5", sup)
	}
}

func TestPostAskRejectsDegenerate(t *testing.T) {
	b := NewBook("fuel")
	b.PostAsk(1, 0, 2)
	b.PostAsk(1, -3, 2)
	b.PostAsk(1, 3, -1)
	if sup := b.Supply(); sup != 0 {
		t.Fatalf("supply = %v after degenerate asks, want 0", sup)
	}
	if _, ok := b.BestAsk(); ok {
		t.Fatalf("best ask reported on empty book")
	}
}

func TestBestAskAndReset(t *testing.T) {
	b := NewBook("fuel")
	b.PostAsk(1, 5, 4)
	b.PostAsk(2, 5, 2)

	best, ok := b.BestAsk()
	if !ok || best != 2 {
		t.Fatalf("best ask = %v ok=%v, want 2 true", best, ok)
	}

	b.Fill([]Offer{{Trader: 9, Good: "fuel", Quantity: 100, Budget: 1e9, Side: Buy}})
	if sup := b.Supply(); sup != 0 {
		t.Fatalf("supply after full sweep = %v, want 0", sup)
	}

	b.Reset()
	if b.Traded != 0 {
		t.Fatalf("traded volume = %v after reset, want 0", b.Traded)
	}
	if _, ok := b.BestAsk(); ok {
		t.Fatalf("reset book still quotes an ask")
	}
}
