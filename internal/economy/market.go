package economy

import "sort"

// Side distinguishes the two directions of an offer.
type Side uint8

const (
	Sell Side = iota
	Buy
)

// Offer is one agent's standing order for one good in one round. Offers are
// created fresh each round by planning and consumed entirely within it.
type Offer struct {
	Trader   uint64  `json:"trader"`
	Good     Good    `json:"good"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`  // ask price for sells; bid limit for buys, 0 = market order
	Budget   float64 `json:"budget"` // buys only: maximum total spend
	Side     Side    `json:"side"`
}

// Trade is a realized match. Execution happens at the ask price.
type Trade struct {
	Good     Good    `json:"good"`
	Buyer    uint64  `json:"buyer"`
	Seller   uint64  `json:"seller"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Cost     float64 `json:"cost"`
}

// Quantities below this are treated as zero to keep float dust out of books.
const minQty = 1e-9

type ask struct {
	trader    uint64
	price     float64
	remaining float64
	seq       int
}

// Book is the order book for one good within one round. Asks persist across
// the round's sequential clearing sessions (labor posted at round start is
// consumed layer by layer); bids are matched immediately by Fill. Books are
// reset between rounds — residual orders never carry over.
type Book struct {
	Good   Good
	Traded float64 // volume matched this round

	asks []ask
	seq  int
}

// NewBook creates an empty book for a good.
func NewBook(g Good) *Book {
	return &Book{Good: g}
}

// PostAsk adds a sell offer. Non-positive quantities and negative prices are
// rejected silently (absence-of-effect).
func (b *Book) PostAsk(trader uint64, qty, price float64) {
	if qty <= minQty || price < 0 {
		return
	}
	b.asks = append(b.asks, ask{trader: trader, price: price, remaining: qty, seq: b.seq})
	b.seq++
}

// BestAsk returns the cheapest remaining ask price.
func (b *Book) BestAsk() (float64, bool) {
	best := 0.0
	found := false
	for _, a := range b.asks {
		if a.remaining <= minQty {
			continue
		}
		if !found || a.price < best {
			best = a.price
			found = true
		}
	}
	return best, found
}

// Supply returns the total remaining ask quantity.
func (b *Book) Supply() float64 {
	var total float64
	for _, a := range b.asks {
		if a.remaining > minQty {
			total += a.remaining
		}
	}
	return total
}

// Fill matches buy offers against the book's asks and returns the realized
// trades. Asks are taken price-ascending, ties broken by posting order;
// buyers are processed in the order given. Each buyer fills until its
// quantity is met, its budget is exhausted, or its limit price is passed.
// Partial fills are allowed. Buy offers with non-positive quantity or budget
// are skipped before matching.
func (b *Book) Fill(bids []Offer) []Trade {
	sort.SliceStable(b.asks, func(i, j int) bool {
		if b.asks[i].price != b.asks[j].price {
			return b.asks[i].price < b.asks[j].price
		}
		return b.asks[i].seq < b.asks[j].seq
	})

	var trades []Trade
	for _, bid := range bids {
		if bid.Side != Buy || bid.Quantity <= minQty || bid.Budget <= minQty {
			continue
		}

		qtyLeft := bid.Quantity
		budgetLeft := bid.Budget

		for i := range b.asks {
			a := &b.asks[i]
			if a.remaining <= minQty {
				continue
			}
			if bid.Price > 0 && a.price > bid.Price {
				break // asks are sorted; everything further is dearer
			}

			fill := a.remaining
			if qtyLeft < fill {
				fill = qtyLeft
			}
			if a.price > 0 {
				if affordable := budgetLeft / a.price; affordable < fill {
					fill = affordable
				}
			}
			if fill <= minQty {
				if a.price > 0 {
					break // budget exhausted
				}
				continue
			}

			cost := fill * a.price
			trades = append(trades, Trade{
				Good:     b.Good,
				Buyer:    bid.Trader,
				Seller:   a.trader,
				Quantity: fill,
				Price:    a.price,
				Cost:     cost,
			})

			a.remaining -= fill
			qtyLeft -= fill
			budgetLeft -= cost
			b.Traded += fill

			if qtyLeft <= minQty || budgetLeft <= minQty {
				break
			}
		}
	}
	return trades
}

// Reset discards all remaining asks and the round volume.
func (b *Book) Reset() {
	b.asks = b.asks[:0]
	b.seq = 0
	b.Traded = 0
}
