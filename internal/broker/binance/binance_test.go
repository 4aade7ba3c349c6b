package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/clock"
	"didibot/internal/model"
)

var btc = model.Ticker{Symbol: "BTCUSDT", Base: "USDT", Quote: "BTC"}

type exchange struct {
	usedWeight  string
	orderPolls  atomic.Int32
	rejectOrder bool
	lastQty     atomic.Value
}

func (e *exchange) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ping", func(w http.ResponseWriter, r *http.Request) {
		if e.usedWeight != "" {
			w.Header().Set("x-mbx-used-weight-1m", e.usedWeight)
		}
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"serverTime":1700000000123}`)
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			[1700002800000,"100.0","101.0","99.0","100.5","12.5",1700002859999,"1250.0",10,"6.0","600.0","0"],
			[1700002860000,"100.5","102.0","100.0","101.5","7.5",1700002919999,"760.0",8,"3.0","300.0","0"]
		]`)
	})
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"symbol":"%s","price":"100.00"}`, r.URL.Query().Get("symbol"))
	})
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbols":[{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","filters":[
			{"filterType":"PRICE_FILTER","minPrice":"0.01","maxPrice":"1000000.00","tickSize":"0.01"},
			{"filterType":"LOT_SIZE","minQty":"0.00001","maxQty":"9000.0","stepSize":"0.00001"},
			{"filterType":"NOTIONAL","minNotional":"5.00"}
		]}]}`)
	})
	mux.HandleFunc("/api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"balances":[{"asset":"BTC","free":"0.25","locked":"0"},{"asset":"USDT","free":"1000.5","locked":"3"}]}`)
	})
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if e.rejectOrder {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"code":-2010,"msg":"Account has insufficient balance for requested action."}`)
				return
			}
			r.ParseForm()
			e.lastQty.Store(r.Form.Get("quantity"))
			fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":28,"status":"NEW","executedQty":"0","cummulativeQuoteQty":"0"}`)
			return
		}
		if e.orderPolls.Add(1) < 2 {
			fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":28,"status":"NEW","executedQty":"0","cummulativeQuoteQty":"0"}`)
			return
		}
		fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":28,"status":"FILLED","executedQty":"0.5","cummulativeQuoteQty":"50.5"}`)
	})
	return mux
}

func newBroker(t *testing.T, e *exchange) *Broker {
	t.Helper()
	srv := httptest.NewServer(e.handler())
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "k", SecretKey: "s", BaseURL: srv.URL, RequestWeightPerMinute: 1000}).
		WithSleeper(clock.NoSleep{})
}

func TestMaxRequestsLimitHit(t *testing.T) {
	ctx := context.Background()

	hit, err := newBroker(t, &exchange{usedWeight: "999"}).MaxRequestsLimitHit(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = newBroker(t, &exchange{usedWeight: "1000"}).MaxRequestsLimitHit(ctx)
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = newBroker(t, &exchange{}).MaxRequestsLimitHit(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestPingFailureIsBrokerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()
	b := New(Config{BaseURL: srv.URL})

	_, err := b.MaxRequestsLimitHit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrBroker)
	var be *model.BrokerError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusTeapot, be.Status)
}

func TestServerTime(t *testing.T) {
	ts, err := newBroker(t, &exchange{}).ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), ts)
}

func TestGetKlines(t *testing.T) {
	ks, err := newBroker(t, &exchange{}).GetKlines(context.Background(), btc, "1m",
		model.KlinesRequest{Since: 1_700_002_800, Until: 1_700_002_860, Limit: 2})
	require.NoError(t, err)
	require.Len(t, ks, 2)
	assert.Equal(t, int64(1_700_002_800), ks[0].OpenTime)
	assert.Equal(t, int64(1_700_002_859), ks[0].CloseTime)
	assert.Equal(t, 100.5, ks[0].Close)
	assert.Equal(t, 7.5, ks[1].Volume)
}

func TestGetPriceAndPortfolio(t *testing.T) {
	b := newBroker(t, &exchange{})
	ctx := context.Background()

	p, err := b.GetPrice(ctx, btc, 0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p)

	p, err = b.GetPrice(ctx, btc, 1_700_002_830)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p)

	pf, err := b.GetPortfolio(ctx, btc)
	require.NoError(t, err)
	assert.Equal(t, model.Portfolio{Quote: 0.25, Base: 1000.5}, pf)
}

func TestGetMinLotSize(t *testing.T) {
	lot, err := newBroker(t, &exchange{}).GetMinLotSize(context.Background(), btc)
	require.NoError(t, err)
	assert.InDelta(t, 1.03*5/100, lot, 1e-12)
}

func TestExecute_PollsUntilFilled(t *testing.T) {
	e := &exchange{}
	b := newBroker(t, e)

	o, err := b.Execute(context.Background(), model.Order{
		Ticker: btc, Signal: model.SignalBuy, OrderType: model.OrderMarket, Price: 100, Quantity: 0.5000049,
	})
	require.NoError(t, err)
	assert.True(t, o.Fulfilled, o.Warnings)
	assert.Equal(t, "28", o.IDByBroker)
	assert.Equal(t, "0.5", e.lastQty.Load())
	assert.InDelta(t, 0.5, o.Quantity, 1e-12)
	assert.InDelta(t, 101.0, o.Price, 1e-12)
	assert.InDelta(t, 0.0505, o.Fee, 1e-12)
	assert.EqualValues(t, 2, e.orderPolls.Load())
}

func TestExecute_RejectionBecomesWarning(t *testing.T) {
	b := newBroker(t, &exchange{rejectOrder: true})
	o, err := b.Execute(context.Background(), model.Order{
		Ticker: btc, Signal: model.SignalSell, Price: 100, Quantity: 0.5,
	})
	require.NoError(t, err)
	assert.False(t, o.Fulfilled)
	require.Len(t, o.Warnings, 1)
	assert.Contains(t, o.Warnings[0], "insufficient balance")
}

func TestExecute_BelowMinimumLot(t *testing.T) {
	b := newBroker(t, &exchange{})
	o, err := b.Execute(context.Background(), model.Order{
		Ticker: btc, Signal: model.SignalBuy, Price: 100, Quantity: 0.01,
	})
	require.NoError(t, err)
	assert.False(t, o.Fulfilled)
	require.Len(t, o.Warnings, 1)
	assert.Contains(t, o.Warnings[0], "below minimum lot")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, defaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 1100, cfg.RequestWeightPerMinute)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
}
