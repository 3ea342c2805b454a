package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-quant-trader/internal/api"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

const binanceBaseURL = "https://api.binance.com"

// Binance talks to the Binance spot REST API. Market data uses public
// endpoints; order endpoints are HMAC-signed. The idempotency token maps
// to newClientOrderId, so a resubmission after a timeout resolves to the
// original order instead of a duplicate fill.
type Binance struct {
	http      *api.Client
	apiKey    string
	secretKey string
	retry     *api.RetryConfig
}

func NewBinance(cfg *store.Config, apiKey, secretKey string) *Binance {
	return &Binance{
		http:      api.NewClient(api.WithBaseURL(binanceBaseURL), api.WithHeader("X-MBX-APIKEY", apiKey)),
		apiKey:    apiKey,
		secretKey: secretKey,
		retry: &api.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			InitialWait: time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
			MaxWait:     time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		},
	}
}

func (b *Binance) Candles(ctx context.Context, symbol, interval string, lookback int) ([]types.Candle, error) {
	path := fmt.Sprintf("/api/v3/klines?symbol=%s&interval=%s&limit=%d", binanceSymbol(symbol), interval, lookback)

	var rows [][]any
	if err := b.http.GetJSONWithRetry(ctx, path, &rows, b.retry); err != nil {
		return nil, fmt.Errorf("%w: binance klines %s: %v", types.ErrExternalService, symbol, err)
	}

	candles := make([]types.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts, ok := row[0].(float64)
		if !ok {
			continue
		}
		c := types.Candle{Ts: int64(ts) / 1000}
		c.Open = parseAnyFloat(row[1])
		c.High = parseAnyFloat(row[2])
		c.Low = parseAnyFloat(row[3])
		c.Close = parseAnyFloat(row[4])
		c.Vol = parseAnyFloat(row[5])
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: binance returned no candles for %s", types.ErrExternalService, symbol)
	}
	return candles, nil
}

func (b *Binance) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Price string `json:"price"`
	}
	path := "/api/v3/ticker/price?symbol=" + binanceSymbol(symbol)
	if err := b.http.GetJSONWithRetry(ctx, path, &out, b.retry); err != nil {
		return 0, fmt.Errorf("%w: binance ticker %s: %v", types.ErrExternalService, symbol, err)
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: binance ticker %s: bad price %q", types.ErrExternalService, symbol, out.Price)
	}
	return price, nil
}

type binanceOrderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	Fills         []struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
	} `json:"fills"`
}

func (b *Binance) SubmitOrder(ctx context.Context, req types.OrderReq) (types.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", binanceSymbol(req.Symbol))
	params.Set("side", string(req.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(req.Size, 'f', -1, 64))
	params.Set("newClientOrderId", req.Token)
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	var resp binanceOrderResponse
	if err := b.http.PostJSON(ctx, "/api/v3/order?"+b.sign(params), nil, &resp); err != nil {
		return types.OrderResult{}, fmt.Errorf("binance order %s: %w", req.Symbol, err)
	}
	return b.orderResult(resp), nil
}

func (b *Binance) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	params := url.Values{}
	params.Set("origClientOrderId", orderID)
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	var resp struct {
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		Price       string `json:"price"`
	}
	if err := b.http.GetJSON(ctx, "/api/v3/order?"+b.sign(params), &resp); err != nil {
		return types.OrderStatus{State: types.OrderUnknown}, fmt.Errorf("binance order status: %w", err)
	}
	return types.OrderStatus{
		OrderID:   orderID,
		State:     binanceState(resp.Status),
		FillPrice: parseAnyFloat(resp.Price),
		FillSize:  parseAnyFloat(resp.ExecutedQty),
	}, nil
}

func (b *Binance) ClosePosition(ctx context.Context, symbol string, side types.Side, size float64, token string) (types.OrderResult, error) {
	closeSide := types.Sell
	if side == types.Short {
		closeSide = types.Buy
	}
	return b.SubmitOrder(ctx, types.OrderReq{Symbol: symbol, Side: closeSide, Size: size, Token: token})
}

func (b *Binance) orderResult(resp binanceOrderResponse) types.OrderResult {
	var fillPrice, fillSize float64
	for _, f := range resp.Fills {
		p := parseAnyFloat(f.Price)
		q := parseAnyFloat(f.Qty)
		fillPrice += p * q
		fillSize += q
	}
	if fillSize > 0 {
		fillPrice /= fillSize
	}
	return types.OrderResult{
		OrderID:   resp.ClientOrderID,
		State:     binanceState(resp.Status),
		FillPrice: fillPrice,
		FillSize:  fillSize,
	}
}

// sign appends the HMAC-SHA256 signature Binance requires on private
// endpoints.
func (b *Binance) sign(params url.Values) string {
	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(b.secretKey))
	mac.Write([]byte(query))
	return query + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func binanceState(status string) types.OrderState {
	switch status {
	case "FILLED":
		return types.OrderFilled
	case "PARTIALLY_FILLED":
		return types.OrderPartial
	case "NEW", "PENDING_NEW":
		return types.OrderPending
	case "REJECTED", "EXPIRED", "CANCELED":
		return types.OrderRejected
	default:
		return types.OrderUnknown
	}
}

// binanceSymbol normalizes "BTC/USDT" style pairs to Binance's joined form.
func binanceSymbol(symbol string) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "").Replace(symbol))
}

func parseAnyFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
