package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"crypto-quant-trader/internal/api"
	"crypto-quant-trader/internal/store"
	"crypto-quant-trader/internal/types"
)

const okxBaseURL = "https://www.okx.com"

// OKX talks to the OKX v5 REST API. Private calls carry the passphrase
// and a base64 HMAC signature over timestamp+method+path+body. The
// idempotency token maps to clOrdId; the instId each token was submitted
// under is remembered so a status query by bare token can be answered
// (the order endpoint requires both).
type OKX struct {
	http       *api.Client
	baseURL    string
	apiKey     string
	secretKey  string
	passphrase string
	retry      *api.RetryConfig

	mu   sync.Mutex
	inst map[string]string // token -> instId
}

func NewOKX(cfg *store.Config, apiKey, secretKey, passphrase string) *OKX {
	return &OKX{
		http:       api.NewClient(api.WithBaseURL(okxBaseURL)),
		baseURL:    okxBaseURL,
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		retry: &api.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			InitialWait: time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
			MaxWait:     time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		},
		inst: make(map[string]string),
	}
}

type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (o *OKX) Candles(ctx context.Context, symbol, interval string, lookback int) ([]types.Candle, error) {
	path := fmt.Sprintf("/api/v5/market/candles?instId=%s&bar=%s&limit=%d", okxInstID(symbol), okxBar(interval), lookback)

	var env okxEnvelope
	if err := o.http.GetJSONWithRetry(ctx, path, &env, o.retry); err != nil {
		return nil, fmt.Errorf("%w: okx candles %s: %v", types.ErrExternalService, symbol, err)
	}
	if env.Code != "0" {
		return nil, fmt.Errorf("%w: okx candles %s: code %s %s", types.ErrExternalService, symbol, env.Code, env.Msg)
	}

	var rows [][]string
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, fmt.Errorf("%w: okx candles %s: %v", types.ErrExternalService, symbol, err)
	}

	// OKX returns newest-first; flip to the oldest-first order the
	// indicator engine expects.
	candles := make([]types.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		ms, _ := strconv.ParseInt(row[0], 10, 64)
		c := types.Candle{Ts: ms / 1000}
		c.Open, _ = strconv.ParseFloat(row[1], 64)
		c.High, _ = strconv.ParseFloat(row[2], 64)
		c.Low, _ = strconv.ParseFloat(row[3], 64)
		c.Close, _ = strconv.ParseFloat(row[4], 64)
		c.Vol, _ = strconv.ParseFloat(row[5], 64)
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: okx returned no candles for %s", types.ErrExternalService, symbol)
	}
	return candles, nil
}

func (o *OKX) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var env okxEnvelope
	path := "/api/v5/market/ticker?instId=" + okxInstID(symbol)
	if err := o.http.GetJSONWithRetry(ctx, path, &env, o.retry); err != nil {
		return 0, fmt.Errorf("%w: okx ticker %s: %v", types.ErrExternalService, symbol, err)
	}
	var data []struct {
		Last string `json:"last"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || len(data) == 0 {
		return 0, fmt.Errorf("%w: okx ticker %s: empty response", types.ErrExternalService, symbol)
	}
	price, err := strconv.ParseFloat(data[0].Last, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: okx ticker %s: bad price %q", types.ErrExternalService, symbol, data[0].Last)
	}
	return price, nil
}

func (o *OKX) SubmitOrder(ctx context.Context, req types.OrderReq) (types.OrderResult, error) {
	instID := okxInstID(req.Symbol)

	// Remember the instId before the call goes out: a lost response is
	// reconciled by bare token, and the status endpoint needs both.
	o.mu.Lock()
	o.inst[req.Token] = instID
	o.mu.Unlock()

	body := map[string]string{
		"instId":  instID,
		"tdMode":  "cash",
		"side":    strings.ToLower(string(req.Side)),
		"ordType": "market",
		"sz":      strconv.FormatFloat(req.Size, 'f', -1, 64),
		"clOrdId": req.Token,
	}

	var env okxEnvelope
	if err := o.signedCall(ctx, "POST", "/api/v5/trade/order", body, &env); err != nil {
		return types.OrderResult{}, fmt.Errorf("okx order %s: %w", req.Symbol, err)
	}
	if env.Code != "0" {
		return types.OrderResult{}, fmt.Errorf("okx order %s rejected: code %s %s", req.Symbol, env.Code, env.Msg)
	}

	var data []struct {
		OrdID   string `json:"ordId"`
		ClOrdID string `json:"clOrdId"`
		SMsg    string `json:"sMsg"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || len(data) == 0 {
		return types.OrderResult{}, fmt.Errorf("okx order %s: empty response", req.Symbol)
	}

	// OKX acknowledges market orders before the fill lands. Resolve the
	// actual state through the status endpoint. OrderID carries the
	// instId so the result can be queried again without extra context.
	composite := instID + ":" + data[0].ClOrdID
	status, err := o.orderStatus(ctx, instID, data[0].ClOrdID)
	if err != nil {
		return types.OrderResult{OrderID: composite, State: types.OrderPending, Message: data[0].SMsg}, nil
	}
	return types.OrderResult{
		OrderID:   composite,
		State:     status.State,
		FillPrice: status.FillPrice,
		FillSize:  status.FillSize,
		Message:   data[0].SMsg,
	}, nil
}

func (o *OKX) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	// The status endpoint requires the instId next to the clOrdId.
	// Composite "instId:clOrdId" IDs carry it; a bare token falls back
	// to the instId remembered at submission.
	instID, clOrdID := splitOKXToken(orderID)
	if instID == "" {
		o.mu.Lock()
		instID = o.inst[clOrdID]
		o.mu.Unlock()
	}
	if instID == "" {
		return types.OrderStatus{OrderID: clOrdID, State: types.OrderUnknown},
			fmt.Errorf("okx order status: no instId known for %q", clOrdID)
	}
	return o.orderStatus(ctx, instID, clOrdID)
}

func (o *OKX) orderStatus(ctx context.Context, instID, clOrdID string) (types.OrderStatus, error) {
	path := fmt.Sprintf("/api/v5/trade/order?instId=%s&clOrdId=%s", instID, clOrdID)

	var env okxEnvelope
	if err := o.signedCall(ctx, "GET", path, nil, &env); err != nil {
		return types.OrderStatus{State: types.OrderUnknown}, fmt.Errorf("okx order status: %w", err)
	}
	var data []struct {
		State   string `json:"state"`
		AvgPx   string `json:"avgPx"`
		AccFill string `json:"accFillSz"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || len(data) == 0 {
		return types.OrderStatus{State: types.OrderUnknown}, fmt.Errorf("okx order status: empty response")
	}

	px, _ := strconv.ParseFloat(data[0].AvgPx, 64)
	sz, _ := strconv.ParseFloat(data[0].AccFill, 64)
	return types.OrderStatus{OrderID: clOrdID, State: okxState(data[0].State), FillPrice: px, FillSize: sz}, nil
}

func (o *OKX) ClosePosition(ctx context.Context, symbol string, side types.Side, size float64, token string) (types.OrderResult, error) {
	closeSide := types.Sell
	if side == types.Short {
		closeSide = types.Buy
	}
	return o.SubmitOrder(ctx, types.OrderReq{Symbol: symbol, Side: closeSide, Size: size, Token: token})
}

func (o *OKX) signedCall(ctx context.Context, method, path string, body any, out any) error {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	payload := ""
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = string(raw)
	}

	mac := hmac.New(sha256.New, []byte(o.secretKey))
	mac.Write([]byte(ts + method + path + payload))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	client := api.NewClient(
		api.WithBaseURL(o.baseURL),
		api.WithHeader("OK-ACCESS-KEY", o.apiKey),
		api.WithHeader("OK-ACCESS-SIGN", sig),
		api.WithHeader("OK-ACCESS-TIMESTAMP", ts),
		api.WithHeader("OK-ACCESS-PASSPHRASE", o.passphrase),
	)
	if method == "GET" {
		return client.GetJSON(ctx, path, out)
	}
	return client.PostJSON(ctx, path, body, out)
}

func okxState(state string) types.OrderState {
	switch state {
	case "filled":
		return types.OrderFilled
	case "partially_filled":
		return types.OrderPartial
	case "live":
		return types.OrderPending
	case "canceled", "mmp_canceled":
		return types.OrderRejected
	default:
		return types.OrderUnknown
	}
}

// okxInstID normalizes pairs to OKX's dashed form: BTCUSDT -> BTC-USDT.
func okxInstID(symbol string) string {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
	if strings.Contains(s, "-") {
		return s
	}
	for _, quote := range []string{"USDT", "USDC", "BTC", "ETH"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)] + "-" + quote
		}
	}
	return s
}

// splitOKXToken unpacks "instId:clOrdId" composite order IDs; a bare
// token is passed through with an empty instId.
func splitOKXToken(token string) (instID, clOrdID string) {
	if i := strings.Index(token, ":"); i >= 0 {
		return token[:i], token[i+1:]
	}
	return "", token
}

func okxBar(interval string) string {
	// Binance-style intervals map onto OKX bars with an uppercase unit
	// for hours and above.
	switch {
	case strings.HasSuffix(interval, "h"), strings.HasSuffix(interval, "d"), strings.HasSuffix(interval, "w"):
		return strings.ToUpper(interval)
	default:
		return interval
	}
}
