package exchange

import (
	"context"
	"fmt"
	"net/url"

	"tradesync/internal/models"
)

// PublicTrades returns shared market trades for one symbol, newest first.
func (c *Client) PublicTrades(ctx context.Context, symbol string, q Query) ([]models.PublicTrade, int64, error) {
	if symbol == "" {
		return nil, 0, fmt.Errorf("symbol is required")
	}
	path := fmt.Sprintf("/v2/trades/%s/hist", url.PathEscape(symbol))
	body, err := c.doPublic(ctx, path, q.values())
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.PublicTrade, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.PublicTrade{
			ID:     r.i64(0),
			Symbol: symbol,
			Mts:    r.i64(1),
			Amount: r.dec(2),
			Price:  r.dec(3),
		})
	}
	return items, env.next, nil
}

// TickersHistory returns best bid/ask samples for one symbol, newest
// first.
func (c *Client) TickersHistory(ctx context.Context, symbol string, q Query) ([]models.TickerHistory, int64, error) {
	if symbol == "" {
		return nil, 0, fmt.Errorf("symbol is required")
	}
	v := q.values()
	v.Set("symbols", symbol)
	body, err := c.doPublic(ctx, "/v2/tickers/hist", v)
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.TickerHistory, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.TickerHistory{
			Symbol:    r.str(0),
			Bid:       r.dec(1),
			Ask:       r.dec(2),
			MtsUpdate: r.i64(3),
		})
	}
	return items, env.next, nil
}

// Symbols returns the full tradable-pair master list.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	body, err := c.doPublic(ctx, "/v2/conf/pub:list:pair:exchange", nil)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	// The conf endpoint wraps the list in a one-element array.
	if len(env.rows) != 1 {
		return nil, fmt.Errorf("unexpected symbols payload shape")
	}
	pairs := make([]string, 0, len(env.rows[0]))
	for i := range env.rows[0] {
		if s := env.rows[0].str(i); s != "" {
			pairs = append(pairs, s)
		}
	}
	return pairs, nil
}

// Currencies returns the full currency master list as (code, label)
// pairs.
func (c *Client) Currencies(ctx context.Context) ([]models.Currency, error) {
	body, err := c.doPublic(ctx, "/v2/conf/pub:map:currency:label", nil)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if len(env.rows) != 1 {
		return nil, fmt.Errorf("unexpected currencies payload shape")
	}
	out := make([]models.Currency, 0, len(env.rows[0]))
	for _, entry := range env.rows[0] {
		pair, ok := entry.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		code, _ := pair[0].(string)
		name, _ := pair[1].(string)
		if code == "" {
			continue
		}
		out = append(out, models.Currency{Code: code, Name: name})
	}
	return out, nil
}
