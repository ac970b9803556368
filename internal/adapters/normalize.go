package adapters

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/observ"
)

// This file is the only place that knows how the backend variants differ.
// Every decoder accepts all known dialects and produces the canonical model.

// object is a decoded JSON object with alias-aware accessors.
type object map[string]any

func (o object) first(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// number returns the first present, non-null numeric field.
func (o object) number(keys ...string) (float64, bool, error) {
	v, ok := o.first(keys...)
	if !ok || v == nil {
		return 0, false, nil
	}
	f, isNum := v.(float64)
	if !isNum {
		return 0, false, fmt.Errorf("field %s: want number, got %T", keys[0], v)
	}
	return f, true, nil
}

func (o object) optNumber(keys ...string) (*float64, error) {
	f, ok, err := o.number(keys...)
	if err != nil || !ok {
		return nil, err
	}
	return &f, nil
}

func (o object) str(keys ...string) string {
	v, ok := o.first(keys...)
	if !ok || v == nil {
		return ""
	}
	if s, isStr := v.(string); isStr {
		return s
	}
	return fmt.Sprint(v)
}

func (o object) boolean(keys ...string) (bool, bool, error) {
	v, ok := o.first(keys...)
	if !ok || v == nil {
		return false, false, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, false, fmt.Errorf("field %s: want bool, got %T", keys[0], v)
	}
	return b, true, nil
}

func (o object) child(keys ...string) (object, bool) {
	v, ok := o.first(keys...)
	if !ok {
		return nil, false
	}
	m, isObj := v.(map[string]any)
	return object(m), isObj
}

func decodeObject(op string, body []byte) (object, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, model.NewError(model.KindMalformedResponse, op, "expected a JSON object", err)
	}
	if m == nil {
		return nil, model.Malformed(op, "expected a JSON object, got null")
	}
	return object(m), nil
}

// wholeNumber accepts integral floats such as 3.0, which Python backends emit.
func wholeNumber(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC3339, Python isoformat() without zone, and "2006-01-02 15:04:05".
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DecodePrices maps GET /api/prices (or /api/houses) into a PriceCache keyed by
// the payload's top-level keys.
func DecodePrices(body []byte) (model.PriceCache, error) {
	const op = "decode prices"
	root, err := decodeObject(op, body)
	if err != nil {
		return nil, err
	}

	cache := make(model.PriceCache, len(root))
	for symbol, raw := range root {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, model.Malformed(op, "%s: want object, got %T", symbol, raw)
		}
		rec, err := decodePriceRecord(symbol, object(m))
		if err != nil {
			return nil, model.NewError(model.KindMalformedResponse, op, symbol, err)
		}
		cache[symbol] = rec
	}
	return cache, nil
}

func decodePriceRecord(symbol string, o object) (model.PriceRecord, error) {
	rec := model.PriceRecord{
		Symbol: symbol,
		Name:   o.str("name"),
		Motto:  o.str("motto"),
	}

	var err error
	if rec.Price, err = o.optNumber("price", "current_price", "currentPrice"); err != nil {
		return rec, err
	}
	if rec.High, err = o.optNumber("high"); err != nil {
		return rec, err
	}
	if rec.Low, err = o.optNumber("low"); err != nil {
		return rec, err
	}
	if rec.Change, _, err = o.number("change"); err != nil {
		return rec, err
	}
	if rec.ChangePercent, _, err = o.number("change_percent", "changePercent"); err != nil {
		return rec, err
	}

	vol, err := o.optNumber("volume")
	if err != nil {
		return rec, err
	}
	if vol != nil {
		v := int64(*vol)
		rec.Volume = &v
	}

	if ts := o.str("last_updated", "lastUpdated"); ts != "" {
		rec.LastUpdated, _ = ParseTimestamp(ts)
	}
	return rec, nil
}

// DecodePortfolio maps both {cash, holdings, history} and {gold, holdings, transactions}.
// Server-computed holdings_value and total are ignored.
func DecodePortfolio(body []byte) (model.PortfolioState, error) {
	const op = "decode portfolio"
	root, err := decodeObject(op, body)
	if err != nil {
		return model.PortfolioState{}, err
	}
	return decodePortfolioObject(op, root)
}

func decodePortfolioObject(op string, o object) (model.PortfolioState, error) {
	var p model.PortfolioState

	cash, ok, err := o.number("cash", "gold")
	if err != nil {
		return p, model.NewError(model.KindMalformedResponse, op, "cash", err)
	}
	if !ok {
		return p, model.Malformed(op, "missing cash")
	}
	p.Cash = cash

	p.Holdings = map[string]int{}
	if rawHoldings, present := o.first("holdings"); present && rawHoldings != nil {
		hm, isObj := rawHoldings.(map[string]any)
		if !isObj {
			return p, model.Malformed(op, "holdings: want object, got %T", rawHoldings)
		}
		for sym, v := range hm {
			f, isNum := v.(float64)
			if !isNum {
				return p, model.Malformed(op, "holdings.%s: want number, got %T", sym, v)
			}
			qty, whole := wholeNumber(f)
			if !whole || qty < 0 {
				return p, model.Malformed(op, "holdings.%s: want non-negative integer, got %v", sym, f)
			}
			p.Holdings[sym] = qty
		}
	}

	p.History = []model.Transaction{}
	if rawHist, present := o.first("history", "transactions"); present && rawHist != nil {
		list, isList := rawHist.([]any)
		if !isList {
			return p, model.Malformed(op, "history: want list, got %T", rawHist)
		}
		for i, item := range list {
			m, isObj := item.(map[string]any)
			if !isObj {
				return p, model.Malformed(op, "history[%d]: want object, got %T", i, item)
			}
			tx, err := decodeTransaction(object(m))
			if err != nil {
				return p, model.NewError(model.KindMalformedResponse, op, fmt.Sprintf("history[%d]", i), err)
			}
			p.History = append(p.History, tx)
		}
	}
	return p, nil
}

func decodeTransaction(o object) (model.Transaction, error) {
	var tx model.Transaction

	ts := o.str("time", "timestamp")
	t, ok := ParseTimestamp(ts)
	if !ok {
		return tx, fmt.Errorf("time: cannot parse %q", ts)
	}
	tx.Time = t

	action, ok := model.ParseAction(o.str("action"))
	if !ok {
		return tx, fmt.Errorf("action: unknown %q", o.str("action"))
	}
	tx.Action = action

	tx.Symbol = o.str("symbol", "house")
	if tx.Symbol == "" {
		return tx, fmt.Errorf("missing symbol")
	}

	qty, present, err := o.number("qty", "quantity")
	if err != nil {
		return tx, err
	}
	n, whole := wholeNumber(qty)
	if !present || !whole || n <= 0 {
		return tx, fmt.Errorf("qty: want positive integer, got %v", qty)
	}
	tx.Qty = n

	price, present, err := o.number("price")
	if err != nil {
		return tx, err
	}
	if !present || price < 0 {
		return tx, fmt.Errorf("price: want non-negative number")
	}
	tx.Price = price

	tx.Reason = o.str("reason")
	return tx, nil
}

// DecodeTradeResult maps the POST /api/trade answer. An inline portfolio that does
// not decode is dropped so the caller falls back to a full refresh.
func DecodeTradeResult(body []byte) (model.TradeResult, error) {
	const op = "decode trade result"
	root, err := decodeObject(op, body)
	if err != nil {
		return model.TradeResult{}, err
	}

	var res model.TradeResult
	if res.Success, _, err = root.boolean("success"); err != nil {
		return res, model.NewError(model.KindMalformedResponse, op, "success", err)
	}
	res.Error = root.str("error")
	res.Message = root.str("message")

	if po, ok := root.child("portfolio"); ok {
		p, err := decodePortfolioObject(op, po)
		if err != nil {
			observ.LogError("trade_inline_portfolio_dropped", err, nil)
		} else {
			res.Portfolio = &p
		}
	}
	if to, ok := root.child("transaction"); ok {
		if tx, err := decodeTransaction(to); err == nil {
			res.Transaction = &tx
		}
	}
	return res, nil
}

// DecodeSignals accepts a symbol->Signal mapping, a list of signals keyed by
// symbol or house, or {"signals": [...]}. Entries with an invalid top-level
// label are skipped; a breakdown with any invalid strategy is dropped whole.
func DecodeSignals(body []byte) (map[string]model.Signal, error) {
	const op = "decode signals"
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, model.NewError(model.KindMalformedResponse, op, "invalid JSON", err)
	}

	if m, ok := raw.(map[string]any); ok {
		if inner, wrapped := m["signals"].([]any); wrapped && len(m) == 1 {
			raw = inner
		}
	}

	out := map[string]model.Signal{}
	switch v := raw.(type) {
	case []any:
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				observ.Log("signal_entry_skipped", map[string]any{"index": i, "reason": "not an object"})
				continue
			}
			o := object(m)
			sym := o.str("symbol", "house")
			if sym == "" {
				observ.Log("signal_entry_skipped", map[string]any{"index": i, "reason": "missing symbol"})
				continue
			}
			if sig, ok := decodeSignal(sym, o); ok {
				out[sym] = sig
			}
		}
	case map[string]any:
		for sym, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				observ.Log("signal_entry_skipped", map[string]any{"symbol": sym, "reason": "not an object"})
				continue
			}
			if sig, ok := decodeSignal(sym, object(m)); ok {
				out[sym] = sig
			}
		}
	default:
		return nil, model.Malformed(op, "want object or list, got %T", raw)
	}
	return out, nil
}

func decodeSignal(symbol string, o object) (model.Signal, bool) {
	label, ok := model.ParseSignalType(o.str("signal"))
	if !ok {
		observ.Log("signal_entry_skipped", map[string]any{"symbol": symbol, "reason": "invalid signal", "signal": o.str("signal")})
		return model.Signal{}, false
	}

	sig := model.Signal{
		Symbol:   symbol,
		Signal:   label,
		Reason:   o.str("reason"),
		Strength: o.str("strength"),
	}

	so, present := o.child("strategies")
	if !present || len(so) == 0 {
		return sig, true
	}

	breakdown := make(map[string]model.StrategySignal, len(so))
	for name, v := range so {
		m, isObj := v.(map[string]any)
		if !isObj {
			return dropBreakdown(sig, name), true
		}
		st, valid := model.ParseSignalType(object(m).str("signal"))
		if !valid {
			return dropBreakdown(sig, name), true
		}
		breakdown[name] = model.StrategySignal{Signal: st, Detail: object(m).str("detail", "reason")}
	}
	sig.Strategies = breakdown
	return sig, true
}

func dropBreakdown(sig model.Signal, strategy string) model.Signal {
	observ.Log("signal_breakdown_dropped", map[string]any{"symbol": sig.Symbol, "strategy": strategy})
	sig.Strategies = nil
	return sig
}

// DefaultCheckIntervalSeconds is used when the backend omits the bot check interval.
const DefaultCheckIntervalSeconds = 60

// DecodeBotStatus maps GET /api/bot-status in snake_case or camelCase.
func DecodeBotStatus(body []byte) (model.AutomationStatus, error) {
	const op = "decode bot status"
	root, err := decodeObject(op, body)
	if err != nil {
		return model.AutomationStatus{}, err
	}
	return decodeBotStatusObject(op, root)
}

func decodeBotStatusObject(op string, o object) (model.AutomationStatus, error) {
	var st model.AutomationStatus
	var err error
	var present bool

	if st.Enabled, present, err = o.boolean("enabled", "bot_enabled"); err != nil {
		return st, model.NewError(model.KindMalformedResponse, op, "enabled", err)
	}
	if !present {
		return st, model.Malformed(op, "missing enabled")
	}
	if st.Running, _, err = o.boolean("running", "is_running", "isRunning"); err != nil {
		return st, model.NewError(model.KindMalformedResponse, op, "running", err)
	}
	if st.VIX, err = o.optNumber("vix", "VIX"); err != nil {
		return st, model.NewError(model.KindMalformedResponse, op, "vix", err)
	}

	interval, ok, err := o.number("check_interval_seconds", "checkIntervalSeconds", "check_interval")
	if err != nil {
		return st, model.NewError(model.KindMalformedResponse, op, "check interval", err)
	}
	st.CheckIntervalSeconds = DefaultCheckIntervalSeconds
	if n, whole := wholeNumber(interval); ok && whole && n > 0 {
		st.CheckIntervalSeconds = n
	}

	if mo, ok := o.child("market_status", "marketStatus"); ok {
		if st.Market.IsOpen, _, err = mo.boolean("is_open", "isOpen"); err != nil {
			return st, model.NewError(model.KindMalformedResponse, op, "market_status.is_open", err)
		}
		st.Market.CurrentTime = mo.str("current_time", "currentTime")
		st.Market.Status = mo.str("status")
	}
	return st, nil
}

// DecodeToggleResult maps the POST /api/toggle-bot answer. A status object
// echoed inline is decoded so it can be adopted without another read.
func DecodeToggleResult(body []byte) (model.ToggleResult, error) {
	const op = "decode toggle result"
	root, err := decodeObject(op, body)
	if err != nil {
		return model.ToggleResult{}, err
	}

	var res model.ToggleResult
	if res.Success, _, err = root.boolean("success"); err != nil {
		return res, model.NewError(model.KindMalformedResponse, op, "success", err)
	}
	res.Message = root.str("message", "error")

	if so, ok := root.child("status"); ok {
		if st, err := decodeBotStatusObject(op, so); err == nil {
			res.Status = &st
		}
	}
	return res, nil
}

// DecodeStrategies maps GET /api/strategies.
func DecodeStrategies(body []byte) (map[string]model.StrategyInfo, error) {
	const op = "decode strategies"
	root, err := decodeObject(op, body)
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.StrategyInfo, len(root))
	for key, v := range root {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, model.Malformed(op, "%s: want object, got %T", key, v)
		}
		o := object(m)
		info := model.StrategyInfo{
			Key:         key,
			Name:        o.str("name"),
			Description: o.str("description"),
			Indicators:  []string{},
		}
		if list, ok := o["indicators"].([]any); ok {
			for _, ind := range list {
				info.Indicators = append(info.Indicators, fmt.Sprint(ind))
			}
		}
		out[key] = info
	}
	return out, nil
}

// Dialect describes how requests are shaped for a backend variant.
type Dialect struct {
	SymbolField       string // symbol | house | both
	ActionCase        string // lower | upper
	PortfolioPathUser bool
	PricesPath        string
}

// TradeBody builds the POST /api/trade payload.
func (d Dialect) TradeBody(userID string, req model.TradeRequest) map[string]any {
	action := string(req.Action)
	if d.ActionCase != "upper" {
		action = strings.ToLower(action)
	}
	body := map[string]any{
		"action":   action,
		"quantity": req.Quantity,
	}
	if userID != "" {
		body["user_id"] = userID
	}
	switch d.SymbolField {
	case "house":
		body["house"] = req.Symbol
	case "both":
		body["house"] = req.Symbol
		body["symbol"] = req.Symbol
	default:
		body["symbol"] = req.Symbol
	}
	return body
}

// PortfolioPath returns the portfolio endpoint for userID.
func (d Dialect) PortfolioPath(userID string) string {
	if d.PortfolioPathUser && userID != "" {
		return "/api/portfolio/" + url.PathEscape(userID)
	}
	return "/api/portfolio"
}
