package dataset

import "strings"

// Category classifies how a catalog field participates in model inputs.
type Category int

const (
	CategoryFeature Category = iota
	CategoryIdentifier
	CategoryTarget
	CategoryLeakage
)

func (c Category) String() string {
	switch c {
	case CategoryIdentifier:
		return "identifier"
	case CategoryTarget:
		return "target"
	case CategoryLeakage:
		return "leakage"
	default:
		return "feature"
	}
}

// Excluded reports whether fields of this category never reach a model.
func (c Category) Excluded() bool { return c != CategoryFeature }

// Field is a logical column with its known physical spellings, in lookup
// priority order.
type Field struct {
	Name      string
	Spellings []string
	Category  Category
}

// Logical field names used across the pipeline.
const (
	FieldOrderID                = "order_id"
	FieldCustomerID             = "customer_id"
	FieldIsDelayed              = "is_delayed"
	FieldIsCanceled             = "is_canceled"
	FieldIsSatisfied            = "is_satisfied"
	FieldTargetReviewScore      = "target_review_score"
	FieldTargetDeliveryDays     = "target_delivery_days"
	FieldIsChurned              = "is_churned"
	FieldPositiveReview         = "positive_review"
	FieldReviewScore            = "review_score"
	FieldOrderStatus            = "order_status"
	FieldStatus                 = "status"
	FieldDaysSinceLastOrder     = "days_since_last_order"
	FieldOrderPurchaseTimestamp = "order_purchase_timestamp"
)

// field derives the default spellings for a logical name: upper case first,
// as emitted by the warehouse, then lower case, then any extra aliases.
func field(name string, cat Category, extra ...string) Field {
	spellings := []string{strings.ToUpper(name), strings.ToLower(name)}
	spellings = append(spellings, extra...)
	return Field{Name: name, Spellings: spellings, Category: cat}
}

// Catalog is the single table of known fields. Training and serving both
// derive their exclusion lists from it.
var Catalog = []Field{
	field(FieldOrderID, CategoryIdentifier),
	field(FieldCustomerID, CategoryIdentifier),

	field(FieldIsDelayed, CategoryTarget),
	field(FieldIsCanceled, CategoryTarget),
	field(FieldIsSatisfied, CategoryTarget),
	field(FieldTargetReviewScore, CategoryTarget),
	field(FieldTargetDeliveryDays, CategoryTarget),
	field(FieldIsChurned, CategoryTarget),
	field(FieldPositiveReview, CategoryTarget),

	field(FieldReviewScore, CategoryLeakage),
	field(FieldOrderStatus, CategoryLeakage),
	field(FieldStatus, CategoryLeakage),

	field(FieldDaysSinceLastOrder, CategoryFeature),
	field(FieldOrderPurchaseTimestamp, CategoryFeature),
}

var catalogIndex = func() map[string]Field {
	idx := make(map[string]Field, len(Catalog))
	for _, f := range Catalog {
		idx[f.Name] = f
	}
	return idx
}()

// Lookup returns the catalog field for a logical name.
func Lookup(name string) (Field, bool) {
	f, ok := catalogIndex[strings.ToLower(name)]
	return f, ok
}

// FieldOf returns the catalog field that lists spelling among its
// spellings.
func FieldOf(spelling string) (Field, bool) {
	for _, f := range Catalog {
		for _, s := range f.Spellings {
			if s == spelling {
				return f, true
			}
		}
	}
	return Field{}, false
}

// Spellings returns the candidate spellings of a logical name. Names not in
// the catalog get the default upper/lower pair.
func Spellings(name string) []string {
	if f, ok := Lookup(name); ok {
		return f.Spellings
	}
	return field(name, CategoryFeature).Spellings
}

// ExcludedSpellings returns every spelling of every field that must never
// be used as a model input.
func ExcludedSpellings() []string {
	var out []string
	for _, f := range Catalog {
		if f.Category.Excluded() {
			out = append(out, f.Spellings...)
		}
	}
	return out
}
