package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/market"
	symbolpkg "tradecouncil/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const maxKlineLimit = 1000

// Spot implements exchange.Adapter and market.Source on the Binance spot API.
type Spot struct {
	cfg    Config
	client *binance.Client
}

func New(cfg Config) (*Spot, error) {
	final := cfg.withDefaults()
	client := binance.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Spot{cfg: final, client: client}, nil
}

func (s *Spot) Name() string {
	if s.cfg.Testnet {
		return "binance-testnet"
	}
	return "binance"
}

func (s *Spot) GetBalance(ctx context.Context) (exchange.Balances, error) {
	acct, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance account: %w", err)
	}
	out := make(exchange.Balances, len(acct.Balances))
	for _, b := range acct.Balances {
		free, locked := parseFloat(b.Free), parseFloat(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		out[strings.ToUpper(b.Asset)] = exchange.Balance{Free: free, Used: locked, Total: free + locked}
	}
	return out, nil
}

func (s *Spot) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	sym := symbolpkg.Parse(req.Symbol)
	if !sym.Valid() {
		return exchange.Order{}, fmt.Errorf("binance: invalid symbol %q", req.Symbol)
	}
	side := binance.SideTypeBuy
	if req.Side == exchange.SideSell {
		side = binance.SideTypeSell
	}
	svc := s.client.NewCreateOrderService().
		Symbol(sym.Binance()).
		Side(side).
		Quantity(formatQty(req.Amount)).
		NewOrderRespType(binance.NewOrderRespTypeFULL)
	orderType := exchange.OrderMarket
	if req.Type == exchange.OrderLimit {
		if req.Price == nil || *req.Price <= 0 {
			return exchange.Order{}, fmt.Errorf("binance: limit order needs a price")
		}
		orderType = exchange.OrderLimit
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(formatQty(*req.Price))
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("binance create order: %w", err)
	}
	raw, _ := json.Marshal(resp)
	order := exchange.Order{
		ID:        strconv.FormatInt(resp.OrderID, 10),
		Symbol:    sym.Internal(),
		Side:      req.Side,
		Type:      orderType,
		Amount:    parseFloat(resp.OrigQuantity),
		Price:     parseFloat(resp.Price),
		Filled:    parseFloat(resp.ExecutedQuantity),
		Average:   averagePrice(resp.CummulativeQuoteQuantity, resp.ExecutedQuantity),
		Status:    mapStatus(resp.Status),
		CreatedAt: time.UnixMilli(resp.TransactTime).UTC(),
		Raw:       raw,
	}
	if order.Amount == 0 {
		order.Amount = req.Amount
	}
	logger.Infof("binance: order %s %s %s amount=%v status=%s", order.ID, order.Side, order.Symbol, order.Amount, order.Status)
	return order, nil
}

func (s *Spot) FetchOrder(ctx context.Context, id, symbol string) (exchange.Order, error) {
	sym := symbolpkg.Parse(symbol)
	orderID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || !sym.Valid() {
		return exchange.Order{ID: id, Status: exchange.StatusUnknown}, fmt.Errorf("binance: bad order ref %q/%q", id, symbol)
	}
	o, err := s.client.NewGetOrderService().Symbol(sym.Binance()).OrderID(orderID).Do(ctx)
	if err != nil {
		return exchange.Order{ID: id, Status: exchange.StatusUnknown}, fmt.Errorf("binance get order: %w", err)
	}
	raw, _ := json.Marshal(o)
	return exchange.Order{
		ID:        id,
		Symbol:    sym.Internal(),
		Side:      exchange.Side(strings.ToLower(string(o.Side))),
		Type:      exchange.OrderType(strings.ToLower(string(o.Type))),
		Amount:    parseFloat(o.OrigQuantity),
		Price:     parseFloat(o.Price),
		Filled:    parseFloat(o.ExecutedQuantity),
		Average:   averagePrice(o.CummulativeQuoteQuantity, o.ExecutedQuantity),
		Status:    mapStatus(o.Status),
		CreatedAt: time.UnixMilli(o.Time).UTC(),
		Raw:       raw,
	}, nil
}

func (s *Spot) CancelOrder(ctx context.Context, id, symbol string) (exchange.Order, error) {
	sym := symbolpkg.Parse(symbol)
	orderID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || !sym.Valid() {
		return exchange.Order{}, fmt.Errorf("binance: bad order ref %q/%q", id, symbol)
	}
	if _, err := s.client.NewCancelOrderService().Symbol(sym.Binance()).OrderID(orderID).Do(ctx); err != nil {
		return exchange.Order{}, fmt.Errorf("binance cancel order: %w", err)
	}
	return s.FetchOrder(ctx, id, symbol)
}

func (s *Spot) GetTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	sym := symbolpkg.Parse(symbol)
	if !sym.Valid() {
		return exchange.Ticker{}, fmt.Errorf("binance: invalid symbol %q", symbol)
	}
	prices, err := s.client.NewListPricesService().Symbol(sym.Binance()).Do(ctx)
	if err != nil {
		return exchange.Ticker{}, fmt.Errorf("binance price: %w", err)
	}
	if len(prices) == 0 {
		return exchange.Ticker{}, fmt.Errorf("binance price: empty response for %s", sym.Binance())
	}
	tk := exchange.Ticker{Symbol: sym.Internal(), Last: parseFloat(prices[0].Price), At: time.Now().UTC()}
	books, err := s.client.NewListBookTickersService().Symbol(sym.Binance()).Do(ctx)
	if err != nil {
		logger.Warnf("binance book ticker %s: %v", sym.Binance(), err)
		return tk, nil
	}
	if len(books) > 0 {
		tk.Bid = parseFloat(books[0].BidPrice)
		tk.Ask = parseFloat(books[0].AskPrice)
	}
	return tk, nil
}

func (s *Spot) Klines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	sym := symbolpkg.Parse(symbol)
	if !sym.Valid() {
		return nil, fmt.Errorf("binance: invalid symbol %q", symbol)
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	kls, err := s.client.NewKlinesService().Symbol(sym.Binance()).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines: %w", err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return out, nil
}

func mapStatus(s binance.OrderStatusType) exchange.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled, binance.OrderStatusTypePendingCancel:
		return exchange.StatusOpen
	case binance.OrderStatusTypeFilled:
		return exchange.StatusClosed
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired, binance.OrderStatusTypeRejected:
		return exchange.StatusCanceled
	default:
		return exchange.StatusUnknown
	}
}

func averagePrice(quoteQty, executedQty string) float64 {
	quote, err1 := decimal.NewFromString(strings.TrimSpace(quoteQty))
	executed, err2 := decimal.NewFromString(strings.TrimSpace(executedQty))
	if err1 != nil || err2 != nil || executed.IsZero() {
		return 0
	}
	return quote.Div(executed).InexactFloat64()
}

// formatQty renders v without exponent and trailing zeros, at most 8 decimals.
func formatQty(v float64) string {
	return decimal.NewFromFloat(v).Truncate(8).String()
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
