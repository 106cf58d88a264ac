package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"olist-ml/internal/dataset"

	"github.com/rs/zerolog/log"
)

// Gold layer relations.
const (
	MLExportView = "gold_obt_orders_ml_export"
	OrdersTable  = "gold_obt_orders"
)

// Loader reads the order one-big-table through a Source.
type Loader struct {
	src Source
}

// NewLoader returns a loader over src.
func NewLoader(src Source) *Loader {
	return &Loader{src: src}
}

// Source returns the underlying source.
func (l *Loader) Source() Source { return l.src }

// LoadOBT reads the ML export view. start and end (YYYY-MM-DD, inclusive)
// bound the purchase date when non-empty; sample > 0 caps the row count.
func (l *Loader) LoadOBT(ctx context.Context, start, end string, sample int) (*dataset.Dataset, error) {
	q := Table(MLExportView)
	if start != "" {
		q.Filters = append(q.Filters, Gte(dataset.FieldOrderPurchaseTimestamp, start))
	}
	if end != "" {
		// Orders placed during the end day sort after the bare date.
		day, err := time.Parse(time.DateOnly, end)
		if err != nil {
			return nil, fmt.Errorf("%w: end date %q: %v", ErrInvalidQuery, end, err)
		}
		next := day.AddDate(0, 0, 1).Format(time.DateOnly)
		q.Filters = append(q.Filters, Lt(dataset.FieldOrderPurchaseTimestamp, next))
	}
	q.Limit = sample

	log.Info().Str("query", q.String()).Msg("Loading OBT")
	ds, err := l.src.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	log.Info().Int("rows", ds.NumRows()).Int("columns", ds.NumCols()).Msg("Loaded OBT")
	return ds, nil
}

// LoadFullOBT reads the full OBT, including categorical columns, with
// equality filters on the given columns.
func (l *Loader) LoadFullOBT(ctx context.Context, filters map[string]any) (*dataset.Dataset, error) {
	q := Table(OrdersTable)
	cols := make([]string, 0, len(filters))
	for c := range filters {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		q.Filters = append(q.Filters, Eq(c, filters[c]))
	}

	ds, err := l.src.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	log.Info().Int("rows", ds.NumRows()).Msg("Loaded full OBT")
	return ds, nil
}

// OrdersByID reads the ML export rows of the given orders, or every row when
// ids is empty.
func (l *Loader) OrdersByID(ctx context.Context, ids []string) (*dataset.Dataset, error) {
	if len(ids) == 0 {
		return l.LoadOBT(ctx, "", "", 0)
	}
	return l.src.Query(ctx, Table(MLExportView, In(dataset.FieldOrderID, toAny(ids)...)))
}

// LatestOrders reads each customer's most recent order from the ML export
// view, restricted to customerIDs when non-empty.
func (l *Loader) LatestOrders(ctx context.Context, customerIDs []string) (*dataset.Dataset, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT * FROM %s
WHERE order_id IN (
  SELECT order_id FROM (
    SELECT order_id,
           ROW_NUMBER() OVER (PARTITION BY customer_id ORDER BY order_purchase_timestamp DESC) AS rn
    FROM %s
  ) latest
  WHERE rn = 1
)`, MLExportView, OrdersTable)
	if len(customerIDs) > 0 {
		b.WriteString("\nAND customer_id IN (")
		b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(customerIDs)), ", "))
		b.WriteString(")")
	}

	ds, err := l.src.Query(ctx, Raw(b.String(), toAny(customerIDs)...))
	if err != nil {
		return nil, err
	}
	log.Info().Int("customers", ds.NumRows()).Msg("Loaded latest order per customer")
	return ds, nil
}

// Summary holds headline statistics of the OBT.
type Summary struct {
	TotalOrders      float64 `json:"total_orders"`
	DeliveredOrders  float64 `json:"delivered_orders"`
	MinDate          string  `json:"min_date"`
	MaxDate          string  `json:"max_date"`
	AvgOrderValue    float64 `json:"avg_order_value"`
	LateDeliveryRate float64 `json:"late_delivery_rate"`
}

// DataSummary computes the OBT headline statistics.
func (l *Loader) DataSummary(ctx context.Context) (Summary, error) {
	var s Summary

	scalar := func(name string, q Query) (*dataset.Dataset, error) {
		ds, err := l.src.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if ds.NumRows() == 0 {
			return nil, fmt.Errorf("%s: empty result", name)
		}
		return ds, nil
	}
	number := func(name string, q Query) (float64, error) {
		ds, err := scalar(name, q)
		if err != nil {
			return 0, err
		}
		// Aggregates over no rows are NULL; report them as zero.
		f, _ := ds.ColumnAt(0).Float(0)
		return f, nil
	}

	var err error
	if s.TotalOrders, err = number("total_orders",
		Raw("SELECT COUNT(*) AS cnt FROM "+OrdersTable)); err != nil {
		return s, err
	}
	if s.DeliveredOrders, err = number("delivered_orders",
		Raw("SELECT COUNT(*) AS cnt FROM "+OrdersTable+" WHERE order_status = ?", "delivered")); err != nil {
		return s, err
	}
	dates, err := scalar("date_range", Raw("SELECT MIN(order_purchase_timestamp) AS min_date, "+
		"MAX(order_purchase_timestamp) AS max_date FROM "+OrdersTable))
	if err != nil {
		return s, err
	}
	s.MinDate = dates.ColumnAt(0).String(0)
	s.MaxDate = dates.ColumnAt(1).String(0)
	if s.AvgOrderValue, err = number("avg_order_value",
		Raw("SELECT AVG(total_order_value) AS avg_val FROM "+OrdersTable)); err != nil {
		return s, err
	}
	if s.LateDeliveryRate, err = number("late_delivery_rate",
		Raw("SELECT AVG(CAST(is_delayed AS FLOAT)) AS rate FROM "+OrdersTable+" WHERE order_status = ?", "delivered")); err != nil {
		return s, err
	}
	return s, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
