package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/overseer/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAPER CLIENT - Dry-run exchange simulation
// ═══════════════════════════════════════════════════════════════════════════════
//
// Fills limit orders and triggers stops against marked prices. Used in
// DRY_RUN mode and in tests; the supervisor cannot tell it apart from a real
// venue, which is the point.
//
// ═══════════════════════════════════════════════════════════════════════════════

type paperOrder struct {
	spec   OrderSpec
	state  OrderState
	idem   string
	symbol string
}

type paperPosition struct {
	info PositionInfo
	stop decimal.Decimal
}

// PaperClient simulates an exchange account in memory.
type PaperClient struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	orders    map[string]*paperOrder
	byIdem    map[string]string
	positions map[string]*paperPosition
	marks     map[string]decimal.Decimal
	seq       int
}

// NewPaperClient creates a paper account with the given starting balance.
func NewPaperClient(balance decimal.Decimal) *PaperClient {
	return &PaperClient{
		balance:   balance,
		orders:    make(map[string]*paperOrder),
		byIdem:    make(map[string]string),
		positions: make(map[string]*paperPosition),
		marks:     make(map[string]decimal.Decimal),
	}
}

// MarkPrice updates the simulated market price for a symbol, filling any
// crossed entry orders and triggering any crossed stops.
func (p *PaperClient) MarkPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price

	for _, o := range p.orders {
		if o.symbol != symbol || o.state.Status != OrderOpen {
			continue
		}
		crossed := (o.spec.Side == types.Long && price.LessThanOrEqual(o.spec.LimitPrice)) ||
			(o.spec.Side == types.Short && price.GreaterThanOrEqual(o.spec.LimitPrice))
		if crossed {
			o.state.Status = OrderFilled
			o.state.FillPrice = o.spec.LimitPrice
			o.state.FilledSize = o.spec.Size
			p.positions[symbol] = &paperPosition{info: PositionInfo{
				Symbol:     symbol,
				Side:       o.spec.Side,
				Size:       o.spec.Size,
				EntryPrice: o.spec.LimitPrice,
			}}
			log.Debug().Str("order", o.state.ID).Str("px", price.String()).Msg("📝 Paper fill")
		}
	}

	pos, ok := p.positions[symbol]
	if !ok || pos.stop.IsZero() {
		return
	}
	stopped := (pos.info.Side == types.Long && price.LessThanOrEqual(pos.stop)) ||
		(pos.info.Side == types.Short && price.GreaterThanOrEqual(pos.stop))
	if stopped {
		p.closeLocked(symbol, pos.stop)
	}
}

// ClosePosition force-closes the symbol's position at the marked price.
func (p *PaperClient) ClosePosition(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.positions[symbol]; !ok {
		return nil
	}
	mark, ok := p.marks[symbol]
	if !ok {
		return fmt.Errorf("paper: no mark price for %s", symbol)
	}
	p.closeLocked(symbol, mark)
	return nil
}

func (p *PaperClient) closeLocked(symbol string, exit decimal.Decimal) {
	pos, ok := p.positions[symbol]
	if !ok {
		return
	}
	pnl := exit.Sub(pos.info.EntryPrice).Mul(pos.info.Size)
	if pos.info.Side == types.Short {
		pnl = pnl.Neg()
	}
	p.balance = p.balance.Add(pnl)
	delete(p.positions, symbol)
	log.Debug().Str("symbol", symbol).Str("pnl", pnl.StringFixed(2)).Msg("📝 Paper close")
}

func (p *PaperClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *PaperClient) OpenPosition(ctx context.Context, symbol string) (*PositionInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return nil, nil
	}
	info := pos.info
	return &info, nil
}

func (p *PaperClient) PlaceOrder(ctx context.Context, spec OrderSpec, idempotencyKey string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byIdem[idempotencyKey]; ok {
		return id, nil
	}

	p.seq++
	id := fmt.Sprintf("paper-%d", p.seq)
	p.orders[id] = &paperOrder{
		spec:   spec,
		symbol: spec.Symbol,
		idem:   idempotencyKey,
		state:  OrderState{ID: id, Status: OrderOpen},
	}
	p.byIdem[idempotencyKey] = id
	return id, nil
}

func (p *PaperClient) Order(ctx context.Context, orderID string) (OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return OrderState{}, ErrOrderNotFound
	}
	return o.state, nil
}

func (p *PaperClient) CancelOrder(ctx context.Context, orderID string) (OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return OrderState{}, ErrOrderNotFound
	}
	if o.state.Status == OrderOpen {
		o.state.Status = OrderCanceled
	}
	return o.state, nil
}

func (p *PaperClient) ModifyStop(ctx context.Context, symbol string, newStop decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return fmt.Errorf("paper: no position for %s", symbol)
	}
	pos.stop = newStop
	return nil
}
