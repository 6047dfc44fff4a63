package parquetio

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/decimal256"
	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgtype"

	"sql2parquet/internal/schema"
)

// appendFunc appends one non-nil value to a bound column builder.
type appendFunc func(v any) error

const millisPerDay = 24 * 60 * 60 * 1000

// newAppender binds a converter for col to b. The builder's concrete type is
// fixed by the Arrow schema derived from the same column.
func newAppender(col schema.ColumnType, b array.Builder) (appendFunc, error) {
	switch col.Kind {
	case schema.KindInt8:
		bb := b.(*array.Int8Builder)
		return func(v any) error {
			n, err := toInt(v, 8)
			if err == nil {
				bb.Append(int8(n))
			}
			return err
		}, nil
	case schema.KindInt16:
		bb := b.(*array.Int16Builder)
		return func(v any) error {
			n, err := toInt(v, 16)
			if err == nil {
				bb.Append(int16(n))
			}
			return err
		}, nil
	case schema.KindInt32:
		bb := b.(*array.Int32Builder)
		return func(v any) error {
			n, err := toInt(v, 32)
			if err == nil {
				bb.Append(int32(n))
			}
			return err
		}, nil
	case schema.KindInt64:
		bb := b.(*array.Int64Builder)
		return func(v any) error {
			n, err := toInt(v, 64)
			if err == nil {
				bb.Append(n)
			}
			return err
		}, nil
	case schema.KindDecimal:
		if col.Precision <= schema.MaxDecimal128Precision {
			bb := b.(*array.Decimal128Builder)
			return func(v any) error {
				u, err := toUnscaled(v, col.Precision, col.Scale)
				if err == nil {
					bb.Append(decimal128.FromBigInt(u))
				}
				return err
			}, nil
		}
		bb := b.(*array.Decimal256Builder)
		return func(v any) error {
			u, err := toUnscaled(v, col.Precision, col.Scale)
			if err == nil {
				bb.Append(decimal256.FromBigInt(u))
			}
			return err
		}, nil
	case schema.KindFloat32:
		bb := b.(*array.Float32Builder)
		return func(v any) error {
			f, err := toFloat32(v)
			if err == nil {
				bb.Append(f)
			}
			return err
		}, nil
	case schema.KindFloat64:
		bb := b.(*array.Float64Builder)
		return func(v any) error {
			f, err := toFloat(v)
			if err == nil {
				bb.Append(f)
			}
			return err
		}, nil
	case schema.KindString:
		bb := b.(*array.StringBuilder)
		return func(v any) error {
			bb.Append(toText(v))
			return nil
		}, nil
	case schema.KindBinary:
		bb := b.(*array.BinaryBuilder)
		return func(v any) error {
			switch x := v.(type) {
			case []byte:
				bb.Append(x)
			case string:
				bb.AppendString(x)
			default:
				return errors.Newf("cannot store %T as binary", v)
			}
			return nil
		}, nil
	case schema.KindDate32:
		bb := b.(*array.Date32Builder)
		return func(v any) error {
			d, err := toDate32(v)
			if err == nil {
				bb.Append(d)
			}
			return err
		}, nil
	case schema.KindTimeMillis:
		bb := b.(*array.Time32Builder)
		return func(v any) error {
			ms, err := toTimeMillis(v)
			if err == nil {
				bb.Append(arrow.Time32(ms))
			}
			return err
		}, nil
	case schema.KindTimestampMillis:
		bb := b.(*array.TimestampBuilder)
		return func(v any) error {
			ms, err := toTimestampMillis(v)
			if err == nil {
				bb.Append(arrow.Timestamp(ms))
			}
			return err
		}, nil
	case schema.KindBool:
		bb := b.(*array.BooleanBuilder)
		return func(v any) error {
			x, err := toBool(v)
			if err == nil {
				bb.Append(x)
			}
			return err
		}, nil
	}
	return nil, errors.Wrapf(schema.ErrUnsupportedType, "column %q: no converter for %s", col.Name, col.Kind)
}

// isNull reports whether v is an explicit or driver-typed null.
func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case pgtype.Numeric:
		return !x.Valid
	case pgtype.Time:
		return !x.Valid
	}
	return false
}

func toInt(v any, bits uint) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int16:
		n = int64(x)
	case int8:
		n = int64(x)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, errors.Newf("value %d overflows int%d", x, bits)
		}
		n = int64(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, errors.Newf("value %d overflows int%d", x, bits)
		}
		n = int64(x)
	case string:
		return parseInt(x, bits)
	case []byte:
		return parseInt(string(x), bits)
	default:
		return 0, errors.Newf("cannot store %T as int%d", v, bits)
	}
	if bits < 64 {
		lo, hi := -int64(1)<<(bits-1), int64(1)<<(bits-1)-1
		if n < lo || n > hi {
			return 0, errors.Newf("value %d overflows int%d", n, bits)
		}
	}
	return n, nil
}

func parseInt(s string, bits uint) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, int(bits))
	if err != nil {
		return 0, errors.Wrapf(err, "int%d", bits)
	}
	return n, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	}
	return 0, errors.Newf("cannot store %T as float", v)
}

// toFloat32 narrows v to float32. Finite values beyond the float32 range
// fail instead of becoming infinities; NaN and infinities pass through.
func toFloat32(v any) (float32, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
		return 0, errors.Newf("value %g overflows float32", f)
	}
	return float32(f), nil
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	case []byte:
		if len(x) == 1 && (x[0] == 0 || x[0] == 1) {
			// BIT(1) as returned by the MySQL driver.
			return x[0] == 1, nil
		}
		return strconv.ParseBool(strings.TrimSpace(string(x)))
	}
	return false, errors.Newf("cannot store %T as bool", v)
}

// Decimals.

var bigTen = big.NewInt(10)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

// toUnscaled returns v as an integer scaled by 10^scale. A value needing more
// fractional digits than scale, or more than precision digits overall, is
// rejected rather than rounded.
func toUnscaled(v any, precision, scale int) (*big.Int, error) {
	var u *big.Int
	switch x := v.(type) {
	case string:
		return parseDecimal(x, precision, scale)
	case []byte:
		return parseDecimal(string(x), precision, scale)
	case float64:
		return parseDecimal(strconv.FormatFloat(x, 'f', -1, 64), precision, scale)
	case float32:
		return parseDecimal(strconv.FormatFloat(float64(x), 'f', -1, 32), precision, scale)
	case int64:
		u = new(big.Int).Mul(big.NewInt(x), pow10(scale))
	case int32:
		u = new(big.Int).Mul(big.NewInt(int64(x)), pow10(scale))
	case int:
		u = new(big.Int).Mul(big.NewInt(int64(x)), pow10(scale))
	case uint64:
		u = new(big.Int).Mul(new(big.Int).SetUint64(x), pow10(scale))
	case pgtype.Numeric:
		return numericUnscaled(x, precision, scale)
	case *big.Int:
		u = new(big.Int).Mul(x, pow10(scale))
	default:
		return nil, errors.Newf("cannot store %T as decimal(%d,%d)", v, precision, scale)
	}
	return u, checkDigits(u, precision, scale)
}

func numericUnscaled(n pgtype.Numeric, precision, scale int) (*big.Int, error) {
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, errors.New("non-finite numeric cannot be stored as decimal")
	}
	if n.Int == nil {
		return new(big.Int), nil
	}
	return rescale(n.Int, int64(n.Exp), precision, scale)
}

func parseDecimal(s string, precision, scale int) (*big.Int, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid decimal %q", s)
	}
	if d.Form != apd.Finite {
		return nil, errors.Newf("non-finite decimal %q cannot be stored as decimal(%d,%d)", s, precision, scale)
	}
	coeff := d.Coeff.MathBigInt()
	if d.Negative {
		coeff.Neg(coeff)
	}
	u, err := rescale(coeff, int64(d.Exponent), precision, scale)
	if err != nil {
		return nil, errors.Wrapf(err, "decimal %q", s)
	}
	return u, nil
}

// rescale turns coeff * 10^exp into an integer scaled by 10^scale. Digits
// that would have to be dropped are an error, never rounded. The shift is
// bounded by precision and the coefficient's own length, so huge exponents
// fail without allocating.
func rescale(coeff *big.Int, exp int64, precision, scale int) (*big.Int, error) {
	if coeff.Sign() == 0 {
		return new(big.Int), nil
	}
	digits := int64(len(new(big.Int).Abs(coeff).String()))
	shift := exp + int64(scale)
	switch {
	case shift > 0:
		if digits+shift > int64(precision) {
			return nil, errors.Newf("value needs %d digits, decimal(%d,%d) holds %d", digits+shift, precision, scale, precision)
		}
		return new(big.Int).Mul(coeff, pow10(int(shift))), nil
	case shift < 0:
		if -shift > digits {
			return nil, errors.Newf("value has more than %d fractional digits", scale)
		}
		q, r := new(big.Int).QuoRem(coeff, pow10(int(-shift)), new(big.Int))
		if r.Sign() != 0 {
			return nil, errors.Newf("value has more than %d fractional digits", scale)
		}
		return q, checkDigits(q, precision, scale)
	}
	return new(big.Int).Set(coeff), checkDigits(coeff, precision, scale)
}

func checkDigits(u *big.Int, precision, scale int) error {
	if u.Sign() == 0 {
		return nil
	}
	if n := len(new(big.Int).Abs(u).String()); n > precision {
		return errors.Newf("value needs %d digits, decimal(%d,%d) holds %d", n, precision, scale, precision)
	}
	return nil
}

// Temporal values.

var (
	dateLayouts = []string{"2006-01-02", time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999"}
	timeLayouts = []string{"15:04:05.999999999", "15:04"}
)

// daysSinceEpoch uses the calendar date in t's own location.
func daysSinceEpoch(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func toDate32(v any) (arrow.Date32, error) {
	switch x := v.(type) {
	case time.Time:
		return arrow.Date32(daysSinceEpoch(x)), nil
	case string:
		t, err := parseLayouts(x, dateLayouts)
		if err != nil {
			return 0, err
		}
		return arrow.Date32(daysSinceEpoch(t)), nil
	case []byte:
		return toDate32(string(x))
	}
	return 0, errors.Newf("cannot store %T as date", v)
}

func toTimeMillis(v any) (int32, error) {
	var ms int64
	switch x := v.(type) {
	case time.Time:
		h, m, s := x.Clock()
		ms = int64(h)*3_600_000 + int64(m)*60_000 + int64(s)*1000 + int64(x.Nanosecond())/1e6
	case pgtype.Time:
		ms = x.Microseconds / 1000
	case time.Duration:
		ms = x.Milliseconds()
	case string:
		t, err := parseLayouts(x, timeLayouts)
		if err != nil {
			return 0, err
		}
		return toTimeMillis(t)
	case []byte:
		return toTimeMillis(string(x))
	default:
		return 0, errors.Newf("cannot store %T as time of day", v)
	}
	if ms < 0 || ms >= millisPerDay {
		return 0, errors.Newf("time of day %dms out of range", ms)
	}
	return int32(ms), nil
}

func toTimestampMillis(v any) (int64, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().UnixMilli(), nil
	case string:
		t, err := parseLayouts(x, dateLayouts)
		if err != nil {
			return 0, err
		}
		return t.UTC().UnixMilli(), nil
	case []byte:
		return toTimestampMillis(string(x))
	}
	return 0, errors.Newf("cannot store %T as timestamp", v)
}

func parseLayouts(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognized temporal value %q", s)
}
