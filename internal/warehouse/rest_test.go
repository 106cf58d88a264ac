package warehouse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"olist-ml/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firstPartition = `{
  "code": "090001",
  "statementHandle": "h-1",
  "resultSetMetaData": {
    "numRows": 3,
    "rowType": [
      {"name": "ORDER_ID", "type": "text"},
      {"name": "FREIGHT_VALUE", "type": "fixed"},
      {"name": "IS_DELAYED", "type": "boolean"},
      {"name": "PURCHASE_DATE", "type": "date"},
      {"name": "ORDER_PURCHASE_TIMESTAMP", "type": "timestamp_ntz"}
    ],
    "partitionInfo": [{"rowCount": 2}, {"rowCount": 1}]
  },
  "data": [
    ["o1", "10.5", "false", "17176", "1484035200.000000000"],
    ["o2", null, "true", "17230", "1488706200.500000000"]
  ]
}`

const secondPartition = `{"data": [["o3", "7", "false", null, null]]}`

func TestRESTSource_Query(t *testing.T) {
	var posted statementReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "KEYPAIR_JWT", r.Header.Get("X-Snowflake-Authorization-Token-Type"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v2/statements":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.Write([]byte(firstPartition))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v2/statements/h-1":
			assert.Equal(t, "1", r.URL.Query().Get("partition"))
			w.Write([]byte(secondPartition))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := &mockMetrics{}
	src := NewREST(RESTConfig{BaseURL: srv.URL, Token: "tok", Database: "OLIST", Warehouse: "WH"}).WithMetrics(m)
	defer src.Close()

	ds, err := src.Query(context.Background(), Table(MLExportView, In("order_id", "o1", "o2", "o3"), Gte("freight_value", 1.5)))
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM gold_obt_orders_ml_export WHERE order_id IN (?, ?, ?) AND freight_value >= ?", posted.Statement)
	assert.Equal(t, "OLIST", posted.Database)
	assert.Equal(t, binding{Type: "TEXT", Value: "o2"}, posted.Bindings["2"])
	assert.Equal(t, binding{Type: "REAL", Value: "1.5"}, posted.Bindings["4"])

	require.Equal(t, 3, ds.NumRows())
	freight, _ := ds.Column("FREIGHT_VALUE")
	assert.Equal(t, dataset.KindNumeric, freight.Kind)
	assert.Equal(t, []any{10.5, nil, 7.0}, freight.Values)

	delayed, _ := ds.Column("IS_DELAYED")
	assert.Equal(t, []any{false, true, false}, delayed.Values)

	day, _ := ds.Column("PURCHASE_DATE")
	assert.Equal(t, dataset.KindTime, day.Kind)
	assert.True(t, time.Date(2017, 1, 10, 0, 0, 0, 0, time.UTC).Equal(day.Values[0].(time.Time)))

	ts, _ := ds.Column("ORDER_PURCHASE_TIMESTAMP")
	assert.True(t, time.Date(2017, 3, 5, 9, 30, 0, 500000000, time.UTC).Equal(ts.Values[1].(time.Time)))
	assert.Nil(t, ts.Values[2])

	assert.Len(t, m.durations, 1)
	assert.Equal(t, 0, m.errors)
}

func TestRESTSource_PollsRunningStatement(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"code": "333334", "statementHandle": "h-2"}`))
			return
		}
		assert.Equal(t, "/api/v2/statements/h-2", r.URL.Path)
		if atomic.AddInt32(&polls, 1) < 2 {
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"code": "333334", "statementHandle": "h-2"}`))
			return
		}
		w.Write([]byte(`{"statementHandle": "h-2", "resultSetMetaData": {"rowType": [{"name": "CNT", "type": "fixed"}],
			"partitionInfo": [{"rowCount": 1}]}, "data": [["4"]]}`))
	}))
	defer srv.Close()

	src := NewREST(RESTConfig{BaseURL: srv.URL, Token: "tok", PollInterval: time.Millisecond})
	ds, err := src.Query(context.Background(), Raw("SELECT COUNT(*) AS cnt FROM gold_obt_orders"))
	require.NoError(t, err)
	cnt, _ := ds.Column("CNT")
	assert.Equal(t, []any{4.0}, cnt.Values)
	assert.Equal(t, int32(2), atomic.LoadInt32(&polls))
}

func TestRESTSource_EmptyResultKeepsSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"statementHandle": "h-3", "resultSetMetaData": {"rowType": [{"name": "ORDER_ID", "type": "text"}],
			"partitionInfo": []}, "data": []}`))
	}))
	defer srv.Close()

	ds, err := NewREST(RESTConfig{BaseURL: srv.URL}).Query(context.Background(), Table(MLExportView))
	require.NoError(t, err)
	assert.Equal(t, 0, ds.NumRows())
	assert.True(t, ds.Has("ORDER_ID"))
}

func TestRESTSource_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code": "002003", "message": "Object 'NOPE' does not exist"}`))
	}))
	defer srv.Close()

	m := &mockMetrics{}
	_, err := NewREST(RESTConfig{BaseURL: srv.URL}).WithMetrics(m).Query(context.Background(), Table("nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
	assert.Equal(t, 1, m.errors)
}

func TestBind_Unsupported(t *testing.T) {
	_, err := bind([]any{struct{}{}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	b, err := bind([]any{int64(3), true})
	require.NoError(t, err)
	assert.Equal(t, binding{Type: "FIXED", Value: "3"}, b["1"])
	assert.Equal(t, binding{Type: "BOOLEAN", Value: "true"}, b["2"])
}
