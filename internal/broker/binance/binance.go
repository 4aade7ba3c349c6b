// Package binance adapts the Binance spot REST API to the broker port.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"didibot/internal/broker"
	"didibot/internal/clock"
	"didibot/internal/model"
)

// Name is the registry name of this broker.
const Name = "binance"

// Broker is the real exchange adapter.
type Broker struct {
	cfg        Config
	client     *gobinance.Client
	httpClient *http.Client
	sleeper    clock.Sleeper

	mu      sync.Mutex
	filters map[string]broker.Filters
}

func New(cfg Config) *Broker {
	final := cfg.withDefaults()
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	client := gobinance.NewClient(final.APIKey, final.SecretKey)
	client.BaseURL = strings.TrimRight(final.BaseURL, "/")
	client.HTTPClient = httpClient
	return &Broker{
		cfg:        final,
		client:     client,
		httpClient: httpClient,
		sleeper:    clock.RealSleeper{},
		filters:    map[string]broker.Filters{},
	}
}

// WithSleeper replaces the sleeper used between order polls.
func (b *Broker) WithSleeper(s clock.Sleeper) *Broker { b.sleeper = s; return b }

func (b *Broker) Name() string         { return Name }
func (b *Broker) TimeFrames() []string { return broker.TimeFrames }

func (b *Broker) ServerTime(ctx context.Context) (int64, error) {
	ms, err := b.client.NewServerTimeService().Do(ctx)
	if err != nil {
		return 0, wrap("server_time", err)
	}
	return clock.FromMillis(ms), nil
}

// MaxRequestsLimitHit pings the exchange and compares the used weight of the
// current minute with the configured ceiling.
func (b *Broker) MaxRequestsLimitHit(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.client.BaseURL+"/api/v3/ping", nil)
	if err != nil {
		return false, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false, model.NewBrokerError("ping", 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, model.NewBrokerError("ping", resp.StatusCode, errors.New(resp.Status))
	}
	raw := resp.Header.Get(usedWeightHeader)
	if raw == "" {
		return false, nil
	}
	used, err := strconv.Atoi(raw)
	if err != nil {
		return false, model.NewBrokerError("ping", resp.StatusCode, fmt.Errorf("bad %s header %q", usedWeightHeader, raw))
	}
	return used >= b.cfg.RequestWeightPerMinute, nil
}

// GetKlines returns the bars opened in [req.Since, req.Until].
func (b *Broker) GetKlines(ctx context.Context, t model.Ticker, tf string, req model.KlinesRequest) ([]model.Kline, error) {
	svc := b.client.NewKlinesService().Symbol(t.Symbol).Interval(tf)
	if req.Since > 0 {
		svc = svc.StartTime(clock.Millis(req.Since))
	}
	if req.Until > 0 {
		svc = svc.EndTime(clock.Millis(req.Until))
	}
	if req.Limit > 0 {
		svc = svc.Limit(req.Limit)
	}
	raw, err := svc.Do(ctx)
	if err != nil {
		return nil, wrap("klines", err)
	}
	return toKlines(raw)
}

func toKlines(raw []*gobinance.Kline) ([]model.Kline, error) {
	out := make([]model.Kline, 0, len(raw))
	for _, r := range raw {
		k := model.Kline{OpenTime: clock.FromMillis(r.OpenTime), CloseTime: clock.FromMillis(r.CloseTime)}
		fields := []struct {
			dst *float64
			src string
		}{{&k.Open, r.Open}, {&k.High, r.High}, {&k.Low, r.Low}, {&k.Close, r.Close}, {&k.Volume, r.Volume}}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f.src, 64)
			if err != nil {
				return nil, model.NewBrokerError("klines", 0, fmt.Errorf("bad number %q: %w", f.src, err))
			}
			*f.dst = v
		}
		out = append(out, k)
	}
	return out, nil
}

// OldestKline asks for the first bar ever listed.
func (b *Broker) OldestKline(ctx context.Context, t model.Ticker, tf string) (model.Kline, error) {
	raw, err := b.client.NewKlinesService().Symbol(t.Symbol).Interval(tf).StartTime(0).Limit(1).Do(ctx)
	if err != nil {
		return model.Kline{}, wrap("oldest_kline", err)
	}
	ks, err := toKlines(raw)
	if err != nil {
		return model.Kline{}, err
	}
	if len(ks) == 0 {
		return model.Kline{}, fmt.Errorf("%w: no klines listed for %s", model.ErrNotFound, t.Symbol)
	}
	return ks[0], nil
}

// GetPrice returns the last traded price, or the open of the minute bar
// containing atTime.
func (b *Broker) GetPrice(ctx context.Context, t model.Ticker, atTime int64) (float64, error) {
	if atTime > 0 {
		ks, err := b.GetKlines(ctx, t, "1m", model.KlinesRequest{Since: clock.Align(atTime, 60), Limit: 1})
		if err != nil {
			return 0, err
		}
		if len(ks) == 0 {
			return 0, fmt.Errorf("%w: no price for %s at %s", model.ErrNotFound, t.Symbol, clock.FormatTimestamp(atTime))
		}
		return ks[0].Open, nil
	}
	prices, err := b.client.NewListPricesService().Symbol(t.Symbol).Do(ctx)
	if err != nil {
		return 0, wrap("price", err)
	}
	for _, p := range prices {
		if p.Symbol == t.Symbol {
			v, err := strconv.ParseFloat(p.Price, 64)
			if err != nil {
				return 0, model.NewBrokerError("price", 0, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: no price listed for %s", model.ErrNotFound, t.Symbol)
}

// GetPortfolio reads the free balances of the ticker's two assets.
func (b *Broker) GetPortfolio(ctx context.Context, t model.Ticker) (model.Portfolio, error) {
	acc, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return model.Portfolio{}, wrap("account", err)
	}
	var pf model.Portfolio
	for _, bal := range acc.Balances {
		free, err := strconv.ParseFloat(bal.Free, 64)
		if err != nil {
			continue
		}
		switch bal.Asset {
		case t.Quote:
			pf.Quote = free
		case t.Base:
			pf.Base = free
		}
	}
	return pf, nil
}

// GetMinLotSize is 1.03 × min notional / price, in quote units.
func (b *Broker) GetMinLotSize(ctx context.Context, t model.Ticker) (float64, error) {
	f, err := b.symbolFilters(ctx, t.Symbol)
	if err != nil {
		return 0, err
	}
	price, err := b.GetPrice(ctx, t, 0)
	if err != nil {
		return 0, err
	}
	return f.MinLotSize(price)
}

func (b *Broker) symbolFilters(ctx context.Context, symbol string) (broker.Filters, error) {
	b.mu.Lock()
	f, ok := b.filters[symbol]
	b.mu.Unlock()
	if ok {
		return f, nil
	}

	info, err := b.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return broker.Filters{}, wrap("exchange_info", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		f = parseFilters(s.Filters)
		b.mu.Lock()
		b.filters[symbol] = f
		b.mu.Unlock()
		return f, nil
	}
	return broker.Filters{}, fmt.Errorf("%w: symbol %s not listed", model.ErrNotFound, symbol)
}

func parseFilters(raw []map[string]interface{}) broker.Filters {
	var f broker.Filters
	dec := func(m map[string]interface{}, key string) decimal.Decimal {
		s, _ := m[key].(string)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	for _, m := range raw {
		switch m["filterType"] {
		case "LOT_SIZE":
			f.StepSize = dec(m, "stepSize")
			f.MinQuantity = dec(m, "minQty")
		case "PRICE_FILTER":
			f.TickSize = dec(m, "tickSize")
		case "NOTIONAL", "MIN_NOTIONAL":
			f.MinNotional = dec(m, "minNotional")
		}
	}
	return f
}

// Execute places o and waits for a terminal status. Exchange rejections and
// lot violations come back as warnings on an unfulfilled order.
func (b *Broker) Execute(ctx context.Context, o model.Order) (model.Order, error) {
	o.Fulfilled = false
	var side gobinance.SideType
	switch {
	case o.Signal.IsBuy():
		side = gobinance.SideTypeBuy
	case o.Signal.IsSell():
		side = gobinance.SideTypeSell
	default:
		o.Warn("Signal %s does not trade.", o.Signal)
		return o, nil
	}

	f, err := b.symbolFilters(ctx, o.Ticker.Symbol)
	if err != nil {
		return o, err
	}
	if o.Price <= 0 {
		if o.Price, err = b.GetPrice(ctx, o.Ticker, 0); err != nil {
			return o, err
		}
	}
	qty, px, err := f.Sanitize(o.Quantity, o.Price)
	if err != nil {
		o.Warn("%v", err)
		return o, nil
	}

	svc := b.client.NewCreateOrderService().
		Symbol(o.Ticker.Symbol).
		Side(side).
		Quantity(qty).
		NewClientOrderID(uuid.NewString())
	if o.OrderType == model.OrderLimit {
		svc = svc.Type(gobinance.OrderTypeLimit).Price(px).TimeInForce(gobinance.TimeInForceTypeGTC)
	} else {
		svc = svc.Type(gobinance.OrderTypeMarket)
	}
	created, err := svc.Do(ctx)
	if err != nil {
		o.Warn("Order rejected: %v", wrap("create_order", err))
		return o, nil
	}
	o.IDByBroker = strconv.FormatInt(created.OrderID, 10)
	log.Printf("[binance] %s %s qty=%s order=%s status=%s", side, o.Ticker.Symbol, qty, o.IDByBroker, created.Status)

	status, executed, cumQuote := created.Status, created.ExecutedQuantity, created.CummulativeQuoteQuantity
	for attempt := 0; !terminal(status) && attempt < b.cfg.OrderPollAttempts; attempt++ {
		if err := b.sleeper.Sleep(ctx, b.cfg.OrderPollInterval); err != nil {
			return o, err
		}
		got, err := b.client.NewGetOrderService().Symbol(o.Ticker.Symbol).OrderID(created.OrderID).Do(ctx)
		if err != nil {
			log.Printf("[binance] poll order %s failed: %v", o.IDByBroker, err)
			continue
		}
		status, executed, cumQuote = got.Status, got.ExecutedQuantity, got.CummulativeQuoteQuantity
	}
	return b.fill(o, status, executed, cumQuote), nil
}

// fill copies the exchange's executed figures onto o.
func (b *Broker) fill(o model.Order, status gobinance.OrderStatusType, executed, cumQuote string) model.Order {
	qty, _ := decimal.NewFromString(executed)
	quote, _ := decimal.NewFromString(cumQuote)
	if qty.IsPositive() {
		o.Quantity = qty.InexactFloat64()
		o.Price = quote.Div(qty).InexactFloat64()
		o.Fee = quote.Mul(decimal.NewFromFloat(b.cfg.FeeRate)).InexactFloat64()
	}
	switch {
	case status == gobinance.OrderStatusTypeFilled:
		o.Fulfilled = true
	case qty.IsPositive():
		o.Fulfilled = true
		o.Warnings = append(o.Warnings, fmt.Sprintf("Partially filled, order status %s.", status))
	default:
		o.Warn("Order not filled, status %s.", status)
	}
	return o
}

func terminal(s gobinance.OrderStatusType) bool {
	switch s {
	case gobinance.OrderStatusTypeFilled, gobinance.OrderStatusTypeCanceled,
		gobinance.OrderStatusTypeRejected, gobinance.OrderStatusTypeExpired:
		return true
	}
	return false
}

// wrap turns client errors into BrokerErrors, keeping the API code.
func wrap(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return model.NewBrokerError(op, 0, fmt.Errorf("code %d: %s", apiErr.Code, apiErr.Message))
	}
	return model.NewBrokerError(op, 0, err)
}
