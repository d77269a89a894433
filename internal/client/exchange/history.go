package exchange

import (
	"context"

	"tradesync/internal/models"
)

func historyBody(q Query) map[string]any {
	body := map[string]any{}
	if q.Start > 0 {
		body["start"] = q.Start
	}
	if q.End > 0 {
		body["end"] = q.End
	}
	if q.Limit > 0 {
		body["limit"] = q.Limit
	}
	if q.Symbol != "" {
		body["symbol"] = q.Symbol
	}
	return body
}

// Trades returns executed private trades, newest first, plus the optional
// next-page cursor.
func (c *Client) Trades(ctx context.Context, auth Auth, q Query) ([]models.Trade, int64, error) {
	body, err := c.doSigned(ctx, auth, "/v2/auth/r/trades/hist", historyBody(q))
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.Trade, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.Trade{
			ID:          r.i64(0),
			Symbol:      r.str(1),
			MtsCreate:   r.i64(2),
			OrderID:     r.i64(3),
			ExecAmount:  r.dec(4),
			ExecPrice:   r.dec(5),
			OrderType:   r.str(6),
			OrderPrice:  r.dec(7),
			Maker:       r.intAt(8),
			Fee:         r.dec(9),
			FeeCurrency: r.str(10),
		})
	}
	return items, env.next, nil
}

func (c *Client) Orders(ctx context.Context, auth Auth, q Query) ([]models.Order, int64, error) {
	body, err := c.doSigned(ctx, auth, "/v2/auth/r/orders/hist", historyBody(q))
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.Order, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.Order{
			ID:         r.i64(0),
			GroupID:    r.i64Ptr(1),
			ClientID:   r.i64Ptr(2),
			Symbol:     r.str(3),
			MtsCreate:  r.i64(4),
			MtsUpdate:  r.i64(5),
			Amount:     r.dec(6),
			AmountOrig: r.dec(7),
			Type:       r.str(8),
			Status:     r.str(9),
			Price:      r.dec(10),
			PriceAvg:   r.dec(11),
		})
	}
	return items, env.next, nil
}

func (c *Client) Ledgers(ctx context.Context, auth Auth, q Query) ([]models.Ledger, int64, error) {
	body, err := c.doSigned(ctx, auth, "/v2/auth/r/ledgers/hist", historyBody(q))
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.Ledger, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.Ledger{
			ID:          r.i64(0),
			Currency:    r.str(1),
			Mts:         r.i64(2),
			Amount:      r.dec(3),
			Balance:     r.dec(4),
			Description: r.str(5),
		})
	}
	return items, env.next, nil
}

func (c *Client) Movements(ctx context.Context, auth Auth, q Query) ([]models.Movement, int64, error) {
	body, err := c.doSigned(ctx, auth, "/v2/auth/r/movements/hist", historyBody(q))
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.Movement, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.Movement{
			ID:                 r.i64(0),
			Currency:           r.str(1),
			CurrencyName:       r.str(2),
			MtsStarted:         r.i64(3),
			MtsUpdated:         r.i64(4),
			Status:             r.str(5),
			Amount:             r.dec(6),
			Fees:               r.dec(7),
			DestinationAddress: r.strPtr(8),
			TransactionID:      r.strPtr(9),
		})
	}
	return items, env.next, nil
}

func (c *Client) FundingOffers(ctx context.Context, auth Auth, q Query) ([]models.FundingOffer, int64, error) {
	body, err := c.doSigned(ctx, auth, "/v2/auth/r/funding/offers/hist", historyBody(q))
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.FundingOffer, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.FundingOffer{
			ID:         r.i64(0),
			Symbol:     r.str(1),
			MtsCreate:  r.i64(2),
			MtsUpdate:  r.i64(3),
			Amount:     r.dec(4),
			AmountOrig: r.dec(5),
			Rate:       r.dec(6),
			Period:     r.intAt(7),
			Status:     r.str(8),
		})
	}
	return items, env.next, nil
}

func (c *Client) FundingLoans(ctx context.Context, auth Auth, q Query) ([]models.FundingLoan, int64, error) {
	body, err := c.doSigned(ctx, auth, "/v2/auth/r/funding/loans/hist", historyBody(q))
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.FundingLoan, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.FundingLoan{
			ID:        r.i64(0),
			Symbol:    r.str(1),
			Side:      r.intAt(2),
			MtsCreate: r.i64(3),
			MtsUpdate: r.i64(4),
			Amount:    r.dec(5),
			Rate:      r.dec(6),
			Period:    r.intAt(7),
			Status:    r.str(8),
		})
	}
	return items, env.next, nil
}

func (c *Client) FundingCredits(ctx context.Context, auth Auth, q Query) ([]models.FundingCredit, int64, error) {
	body, err := c.doSigned(ctx, auth, "/v2/auth/r/funding/credits/hist", historyBody(q))
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.FundingCredit, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.FundingCredit{
			ID:           r.i64(0),
			Symbol:       r.str(1),
			Side:         r.intAt(2),
			MtsCreate:    r.i64(3),
			MtsUpdate:    r.i64(4),
			Amount:       r.dec(5),
			Rate:         r.dec(6),
			Period:       r.intAt(7),
			Status:       r.str(8),
			PositionPair: r.str(9),
		})
	}
	return items, env.next, nil
}

func (c *Client) PositionsHistory(ctx context.Context, auth Auth, q Query) ([]models.PositionHistory, int64, error) {
	body, err := c.doSigned(ctx, auth, "/v2/auth/r/positions/hist", historyBody(q))
	if err != nil {
		return nil, 0, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.PositionHistory, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.PositionHistory{
			ID:        r.i64(0),
			Symbol:    r.str(1),
			Status:    r.str(2),
			Amount:    r.dec(3),
			BasePrice: r.dec(4),
			MtsCreate: r.i64(5),
			MtsUpdate: r.i64(6),
		})
	}
	return items, env.next, nil
}

// Wallets returns the wallet snapshot as of q.End. The endpoint has no
// pagination; the caller walks q.End backward day by day.
func (c *Client) Wallets(ctx context.Context, auth Auth, end int64) ([]models.WalletBalance, error) {
	body, err := c.doSigned(ctx, auth, "/v2/auth/r/wallets/hist", historyBody(Query{End: end}))
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	items := make([]models.WalletBalance, 0, len(env.rows))
	for _, r := range env.rows {
		items = append(items, models.WalletBalance{
			Type:     r.str(0),
			Currency: r.str(1),
			Balance:  r.dec(2),
			Mts:      r.i64(3),
		})
	}
	return items, nil
}
