// Command generate_sample_obt writes a synthetic Olist OBT to a sqlite file
// so the obtml CLI can run without a Snowflake account:
//
//	go run ./scripts/generate_sample_obt -out data/sample_obt.db
//	WAREHOUSE_URL=sqlite3://data/sample_obt.db obtml summary
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const columns = `
	order_id TEXT,
	customer_id TEXT,
	order_status TEXT,
	order_purchase_timestamp TEXT,
	total_order_value REAL,
	freight_value REAL,
	product_weight_g REAL,
	seller_customer_distance_km REAL,
	estimated_delivery_days REAL,
	days_since_last_order REAL,
	target_delivery_days REAL,
	review_score REAL,
	target_review_score REAL,
	is_delayed INTEGER`

type order struct {
	id, customer, status, purchased    string
	value, freight, weight, distance   float64
	estimated, sinceLast, deliveryDays float64
	review                             float64
	delayed                            int
}

func main() {
	var (
		out       = flag.String("out", "data/sample_obt.db", "sqlite file to write")
		orders    = flag.Int("orders", 5000, "Number of orders to generate")
		customers = flag.Int("customers", 3000, "Number of distinct customers")
		seed      = flag.Int64("seed", 42, "Random seed")
	)
	flag.Parse()

	fmt.Printf("Generating sample OBT...\n")
	fmt.Printf("  Orders: %d\n", *orders)
	fmt.Printf("  Customers: %d\n", *customers)
	fmt.Printf("  Output: %s\n", *out)

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	db, err := sql.Open("sqlite3", *out)
	if err != nil {
		log.Fatalf("Failed to open sqlite file: %v", err)
	}
	defer db.Close()

	rows := generateOrders(rand.New(rand.NewSource(*seed)), *orders, *customers)
	for _, table := range []string{"gold_obt_orders", "gold_obt_orders_ml_export"} {
		if err := writeTable(db, table, rows); err != nil {
			log.Fatalf("Failed to write %s: %v", table, err)
		}
	}

	late := 0
	for _, o := range rows {
		late += o.delayed
	}
	fmt.Printf("✓ Generated %d orders (%.1f%% late)\n", len(rows), 100*float64(late)/float64(len(rows)))
}

// generateOrders draws orders whose lateness depends on distance, weight
// and the promised delivery time.
func generateOrders(rng *rand.Rand, n, customers int) []order {
	start := time.Date(2016, 9, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2018, 10, 17, 0, 0, 0, 0, time.UTC)
	span := end.Sub(start)

	out := make([]order, n)
	for i := range out {
		purchased := start.Add(time.Duration(rng.Int63n(int64(span))))
		distance := math.Abs(rng.NormFloat64()*600 + 500)
		weight := math.Abs(rng.NormFloat64()*2000 + 1500)
		estimated := math.Round(10 + distance/80 + rng.Float64()*10)

		// Long, heavy shipments on a short promise run late.
		z := -3.2 + distance/700 + weight/4000 - (estimated-20)/15 + rng.NormFloat64()*0.5
		delayed := 0
		if rng.Float64() < 1/(1+math.Exp(-z)) {
			delayed = 1
		}
		delivery := estimated * (0.6 + rng.Float64()*0.4)
		if delayed == 1 {
			delivery = estimated + 1 + rng.ExpFloat64()*7
		}

		review := 5.0
		switch {
		case delayed == 1 && rng.Float64() < 0.6:
			review = float64(1 + rng.Intn(3))
		case rng.Float64() < 0.2:
			review = float64(3 + rng.Intn(2))
		}

		status := "delivered"
		if rng.Float64() < 0.03 {
			status = "canceled"
		}

		out[i] = order{
			id:           fmt.Sprintf("%032x", rng.Uint64()),
			customer:     fmt.Sprintf("c%06d", rng.Intn(customers)),
			status:       status,
			purchased:    purchased.Format("2006-01-02 15:04:05"),
			value:        math.Round((20+rng.ExpFloat64()*120)*100) / 100,
			freight:      math.Round((5+distance/100+weight/1000)*100) / 100,
			weight:       math.Round(weight),
			distance:     math.Round(distance),
			estimated:    estimated,
			sinceLast:    math.Round(end.Sub(purchased).Hours() / 24),
			deliveryDays: math.Round(delivery),
			review:       review,
			delayed:      delayed,
		}
	}
	return out
}

func writeTable(db *sql.DB, table string, rows []order) error {
	if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
		return err
	}
	if _, err := db.Exec("CREATE TABLE " + table + " (" + columns + ")"); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO " + table + " VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range rows {
		if _, err := stmt.Exec(o.id, o.customer, o.status, o.purchased, o.value, o.freight, o.weight,
			o.distance, o.estimated, o.sinceLast, o.deliveryDays, o.review, o.review, o.delayed); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert order %s: %w", o.id, err)
		}
	}
	return tx.Commit()
}
