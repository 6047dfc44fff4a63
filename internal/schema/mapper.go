package schema

import (
	"github.com/cockroachdb/errors"
)

// ErrUnsupportedType is returned when a column descriptor matches no mapping
// rule. Schema derivation stops at the first such column.
var ErrUnsupportedType = errors.New("unsupported type")

// Decimal precision limits. Up to 38 digits fit a 128-bit decimal; up to 76
// fit a 256-bit one.
const (
	MaxDecimal128Precision = 38
	MaxDecimalPrecision    = 76
)

// Mapper turns source column descriptors into target column types. The zero
// value applies the default rules.
type Mapper struct {
	// IEEEFloats switches floating-point columns to conventional precision
	// semantics: binary precision <= 24 maps to float32, anything else to
	// float64. When false, precision 53 maps to float32 and everything else
	// to float64, which keeps output compatible with earlier exports.
	IEEEFloats bool
}

// MapColumn returns the target type for d or an error wrapping
// ErrUnsupportedType.
func (m Mapper) MapColumn(d ColumnDescriptor) (ColumnType, error) {
	ct := ColumnType{Name: d.Name, Nullable: d.Nullable}

	switch d.Tag {
	case TagInteger:
		switch d.Precision {
		case 3:
			ct.Kind = KindInt8
		case 5:
			ct.Kind = KindInt16
		case 10:
			ct.Kind = KindInt32
		default:
			ct.Kind = KindInt64
		}

	case TagDecimal:
		if d.Precision < 1 || d.Precision > MaxDecimalPrecision {
			return ColumnType{}, errors.Wrapf(ErrUnsupportedType,
				"column %q: decimal precision %d outside 1..%d", d.Name, d.Precision, MaxDecimalPrecision)
		}
		if d.Scale < 0 || d.Scale > d.Precision {
			return ColumnType{}, errors.Wrapf(ErrUnsupportedType,
				"column %q: decimal scale %d outside 0..%d", d.Name, d.Scale, d.Precision)
		}
		ct.Kind = KindDecimal
		ct.Precision = d.Precision
		ct.Scale = d.Scale

	case TagFloat:
		ct.Kind = m.floatKind(d.Precision)

	case TagText, TagOther:
		// TagOther values were already stringified at the cursor boundary.
		ct.Kind = KindString

	case TagBinary:
		ct.Kind = KindBinary

	case TagDate:
		ct.Kind = KindDate32

	case TagTime:
		ct.Kind = KindTimeMillis

	case TagDateTime:
		ct.Kind = KindTimestampMillis

	case TagBoolean:
		ct.Kind = KindBool

	default:
		return ColumnType{}, errors.Wrapf(ErrUnsupportedType,
			"column %q: source type %s (native %q)", d.Name, d.Tag, d.TypeName)
	}
	return ct, nil
}

func (m Mapper) floatKind(precision int) TargetKind {
	if m.IEEEFloats {
		if precision > 0 && precision <= 24 {
			return KindFloat32
		}
		return KindFloat64
	}
	if precision == 53 {
		return KindFloat32
	}
	return KindFloat64
}

// Derive maps every descriptor in order. Nothing is returned unless every
// column maps.
func (m Mapper) Derive(cols []ColumnDescriptor) (*Schema, error) {
	if len(cols) == 0 {
		return nil, errors.Wrap(ErrUnsupportedType, "result set has no columns")
	}
	out := make([]ColumnType, 0, len(cols))
	for _, d := range cols {
		ct, err := m.MapColumn(d)
		if err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return &Schema{columns: out}, nil
}
