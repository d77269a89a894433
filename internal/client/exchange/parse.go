package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// envelope is the two response shapes history calls come back in: a bare
// array of records, or {"records": [...], "nextPageCursor": n}.
type envelope struct {
	rows []row
	next int64
}

type wrapped struct {
	Records        []json.RawMessage `json:"records"`
	NextPageCursor int64             `json:"nextPageCursor"`
}

func decodeEnvelope(body []byte) (envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var w wrapped
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return envelope{}, fmt.Errorf("failed to decode paged response: %w", err)
		}
		rows, err := decodeRows(w.Records)
		if err != nil {
			return envelope{}, err
		}
		return envelope{rows: rows, next: w.NextPageCursor}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return envelope{}, fmt.Errorf("failed to decode response: %w", err)
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return envelope{}, err
	}
	return envelope{rows: rows}, nil
}

// row is one positional record. Numbers are kept as json.Number so ids and
// millisecond timestamps survive intact.
type row []any

func decodeRows(raw []json.RawMessage) ([]row, error) {
	rows := make([]row, 0, len(raw))
	for _, msg := range raw {
		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.UseNumber()
		var r row
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (r row) i64(i int) int64 {
	if i >= len(r) {
		return 0
	}
	if n, ok := r[i].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			return v
		}
	}
	return 0
}

func (r row) i64Ptr(i int) *int64 {
	if i >= len(r) || r[i] == nil {
		return nil
	}
	v := r.i64(i)
	return &v
}

func (r row) intAt(i int) int {
	return int(r.i64(i))
}

func (r row) str(i int) string {
	if i >= len(r) {
		return ""
	}
	if s, ok := r[i].(string); ok {
		return s
	}
	return ""
}

func (r row) strPtr(i int) *string {
	if i >= len(r) || r[i] == nil {
		return nil
	}
	s := r.str(i)
	return &s
}

func (r row) dec(i int) decimal.Decimal {
	if i >= len(r) || r[i] == nil {
		return decimal.Zero
	}
	if n, ok := r[i].(json.Number); ok {
		if v, err := decimal.NewFromString(n.String()); err == nil {
			return v
		}
	}
	return decimal.Zero
}
