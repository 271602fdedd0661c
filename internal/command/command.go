package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tinyex.com/internal/matching"
	"tinyex.com/pkg/xerr"
)

type Kind uint8

const (
	Limit Kind = iota + 1
	Market
	Quote
	ViewOrders
	Quit
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case Quote:
		return "quote"
	case ViewOrders:
		return "view_orders"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Action is one parsed line of the trader's command language.
type Action struct {
	Kind   Kind
	Side   matching.Side // Limit, Market
	Ticker string        // Limit, Market, Quote
	Price  float64       // Limit
	Qty    int64         // Limit, Market
}

var (
	limitRe  = regexp.MustCompile(`^(BUY|SELL) (\w+) LMT \$([0-9]*\.?[0-9]+) (\d+)$`)
	marketRe = regexp.MustCompile(`^(BUY|SELL) (\w+) MKT (\d+)$`)
	quoteRe  = regexp.MustCompile(`^QUOTE (\w+)$`)
)

// Parse reads one action:
//
//	BUY|SELL <TICKER> LMT $<price> <qty>
//	BUY|SELL <TICKER> MKT <qty>
//	QUOTE <TICKER>
//	VIEW ORDERS
//	QUIT
//
// Errors are *xerr.CodeError with code xerr.BadRequest.
func Parse(line string) (Action, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "VIEW ORDERS":
		return Action{Kind: ViewOrders}, nil
	case "QUIT":
		return Action{Kind: Quit}, nil
	}

	if m := limitRe.FindStringSubmatch(line); m != nil {
		price, err := strconv.ParseFloat(m[3], 64)
		if err != nil || price <= 0 {
			return Action{}, xerr.Newf(xerr.BadRequest, "invalid price %q", m[3])
		}
		qty, err := parseQty(m[4])
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: Limit, Side: side(m[1]), Ticker: m[2], Price: price, Qty: qty}, nil
	}
	if m := marketRe.FindStringSubmatch(line); m != nil {
		qty, err := parseQty(m[3])
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: Market, Side: side(m[1]), Ticker: m[2], Qty: qty}, nil
	}
	if m := quoteRe.FindStringSubmatch(line); m != nil {
		return Action{Kind: Quote, Ticker: m[1]}, nil
	}
	return Action{}, xerr.Newf(xerr.BadRequest, "invalid action %q", line)
}

func parseQty(s string) (int64, error) {
	qty, err := strconv.ParseInt(s, 10, 64)
	if err != nil || qty <= 0 {
		return 0, xerr.Newf(xerr.BadRequest, "invalid quantity %q", s)
	}
	return qty, nil
}

func side(s string) matching.Side {
	if s == "BUY" {
		return matching.Buy
	}
	return matching.Sell
}

// String renders a in the syntax Parse accepts.
func (a Action) String() string {
	switch a.Kind {
	case Limit:
		return fmt.Sprintf("%s %s LMT $%.2f %d", a.Side, a.Ticker, a.Price, a.Qty)
	case Market:
		return fmt.Sprintf("%s %s MKT %d", a.Side, a.Ticker, a.Qty)
	case Quote:
		return "QUOTE " + a.Ticker
	case ViewOrders:
		return "VIEW ORDERS"
	case Quit:
		return "QUIT"
	default:
		return ""
	}
}
