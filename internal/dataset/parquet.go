package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/rs/zerolog/log"
)

// TargetColumn is the column name used for persisted labels.
const TargetColumn = "target"

// FeaturesPath and TargetPath follow the {prefix}_features / {prefix}_target
// naming convention for persisted splits.
func FeaturesPath(dir, prefix string) string {
	return filepath.Join(dir, prefix+"_features.parquet")
}

func TargetPath(dir, prefix string) string {
	return filepath.Join(dir, prefix+"_target.parquet")
}

// SaveSplit writes a feature matrix and its label column as two parquet
// files under dir.
func SaveSplit(dir, prefix string, features *Dataset, target *Column) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if target.Len() != features.NumRows() {
		return fmt.Errorf("target has %d rows, features have %d", target.Len(), features.NumRows())
	}
	if err := WriteParquet(FeaturesPath(dir, prefix), features); err != nil {
		return err
	}
	t := &Column{Name: TargetColumn, Kind: target.Kind, Values: target.Values}
	if err := WriteParquet(TargetPath(dir, prefix), MustNew(t)); err != nil {
		return err
	}
	log.Info().Str("dir", dir).Str("prefix", prefix).Int("rows", features.NumRows()).Msg("Saved dataset split")
	return nil
}

// LoadSplit reads a split written by SaveSplit.
func LoadSplit(ctx context.Context, dir, prefix string) (*Dataset, *Column, error) {
	features, err := ReadParquet(ctx, FeaturesPath(dir, prefix))
	if err != nil {
		return nil, nil, err
	}
	targets, err := ReadParquet(ctx, TargetPath(dir, prefix))
	if err != nil {
		return nil, nil, err
	}
	target, ok := targets.Column(TargetColumn)
	if !ok {
		return nil, nil, &ColumnNotFoundError{Field: TargetColumn, Candidates: []string{TargetColumn}, Available: targets.Names()}
	}
	if target.Len() != features.NumRows() {
		return nil, nil, fmt.Errorf("target has %d rows, features have %d", target.Len(), features.NumRows())
	}
	return features, target, nil
}

func arrowType(k Kind) arrow.DataType {
	switch k {
	case KindString:
		return arrow.BinaryTypes.String
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	case KindTime:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.PrimitiveTypes.Float64
	}
}

// WriteParquet writes ds to path, replacing any existing file.
func WriteParquet(path string, ds *Dataset) error {
	mem := memory.NewGoAllocator()

	fields := make([]arrow.Field, ds.NumCols())
	for i := 0; i < ds.NumCols(); i++ {
		c := ds.ColumnAt(i)
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Kind), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	for i := 0; i < ds.NumCols(); i++ {
		if err := appendColumn(b.Field(i), ds.ColumnAt(i)); err != nil {
			return err
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return fmt.Errorf("open parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		f.Close()
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func appendColumn(fb array.Builder, c *Column) error {
	for i := range c.Values {
		if c.IsNull(i) {
			fb.AppendNull()
			continue
		}
		switch bb := fb.(type) {
		case *array.Float64Builder:
			f, ok := c.Float(i)
			if !ok {
				return fmt.Errorf("column %q row %d: %T is not numeric", c.Name, i, c.Values[i])
			}
			bb.Append(f)
		case *array.StringBuilder:
			bb.Append(c.String(i))
		case *array.BooleanBuilder:
			v, ok := c.Values[i].(bool)
			if !ok {
				return fmt.Errorf("column %q row %d: %T is not bool", c.Name, i, c.Values[i])
			}
			bb.Append(v)
		case *array.TimestampBuilder:
			t, ok := c.Values[i].(time.Time)
			if !ok {
				return fmt.Errorf("column %q row %d: %T is not a timestamp", c.Name, i, c.Values[i])
			}
			bb.Append(arrow.Timestamp(t.UnixMicro()))
		default:
			return fmt.Errorf("column %q: unsupported builder %T", c.Name, fb)
		}
	}
	return nil
}

// ReadParquet loads a parquet file into a Dataset.
func ReadParquet(ctx context.Context, path string) (*Dataset, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("open parquet reader: %w", err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer tbl.Release()

	cols := make([]*Column, 0, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		ac := tbl.Column(i)
		col := &Column{Name: ac.Name(), Values: make([]any, 0, tbl.NumRows())}
		for _, chunk := range ac.Data().Chunks() {
			if err := readChunk(col, chunk); err != nil {
				return nil, err
			}
		}
		cols = append(cols, col)
	}
	ds, err := New(cols...)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		ds.rows = int(tbl.NumRows())
	}
	return ds, nil
}

func readChunk(col *Column, chunk arrow.Array) error {
	switch a := chunk.(type) {
	case *array.Float64:
		col.Kind = KindNumeric
		for j := 0; j < a.Len(); j++ {
			if a.IsNull(j) {
				col.Values = append(col.Values, nil)
			} else {
				col.Values = append(col.Values, a.Value(j))
			}
		}
	case *array.Int64:
		col.Kind = KindNumeric
		for j := 0; j < a.Len(); j++ {
			if a.IsNull(j) {
				col.Values = append(col.Values, nil)
			} else {
				col.Values = append(col.Values, float64(a.Value(j)))
			}
		}
	case *array.String:
		col.Kind = KindString
		for j := 0; j < a.Len(); j++ {
			if a.IsNull(j) {
				col.Values = append(col.Values, nil)
			} else {
				col.Values = append(col.Values, a.Value(j))
			}
		}
	case *array.Boolean:
		col.Kind = KindBool
		for j := 0; j < a.Len(); j++ {
			if a.IsNull(j) {
				col.Values = append(col.Values, nil)
			} else {
				col.Values = append(col.Values, a.Value(j))
			}
		}
	case *array.Timestamp:
		col.Kind = KindTime
		unit := a.DataType().(*arrow.TimestampType).Unit
		for j := 0; j < a.Len(); j++ {
			if a.IsNull(j) {
				col.Values = append(col.Values, nil)
			} else {
				col.Values = append(col.Values, a.Value(j).ToTime(unit).UTC())
			}
		}
	default:
		return fmt.Errorf("column %q: unsupported arrow type %s", col.Name, chunk.DataType())
	}
	return nil
}
