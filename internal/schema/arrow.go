package schema

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cockroachdb/errors"
)

// ArrowType returns the Arrow data type for a column.
func (c ColumnType) ArrowType() (arrow.DataType, error) {
	switch c.Kind {
	case KindInt8:
		return arrow.PrimitiveTypes.Int8, nil
	case KindInt16:
		return arrow.PrimitiveTypes.Int16, nil
	case KindInt32:
		return arrow.PrimitiveTypes.Int32, nil
	case KindInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case KindDecimal:
		if c.Precision <= MaxDecimal128Precision {
			return &arrow.Decimal128Type{Precision: int32(c.Precision), Scale: int32(c.Scale)}, nil
		}
		return &arrow.Decimal256Type{Precision: int32(c.Precision), Scale: int32(c.Scale)}, nil
	case KindFloat32:
		return arrow.PrimitiveTypes.Float32, nil
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case KindString:
		return arrow.BinaryTypes.String, nil
	case KindBinary:
		return arrow.BinaryTypes.Binary, nil
	case KindDate32:
		return arrow.PrimitiveTypes.Date32, nil
	case KindTimeMillis:
		return arrow.FixedWidthTypes.Time32ms, nil
	case KindTimestampMillis:
		// No zone: values are wall-clock instants normalized to UTC.
		return &arrow.TimestampType{Unit: arrow.Millisecond}, nil
	case KindBool:
		return arrow.FixedWidthTypes.Boolean, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "column %q: no arrow type for %s", c.Name, c.Kind)
}

// Arrow converts the schema into an Arrow schema with the same column order.
// Duplicate column names are kept; fields are addressed by position.
func (s *Schema) Arrow() (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(s.columns))
	for _, c := range s.columns {
		dt, err := c.ArrowType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{Name: c.Name, Type: dt, Nullable: c.Nullable})
	}
	return arrow.NewSchema(fields, nil), nil
}
