package source

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"sql2parquet/internal/schema"
)

// Fallback renders a value the driver could not decode into a Go primitive as
// text. It is only applied to non-nil values of TagOther columns; nulls stay
// null.
type Fallback func(col schema.ColumnDescriptor, v any) (string, error)

// DefaultFallback stringifies common driver values:
//
//   - string and fmt.Stringer as-is
//   - []byte as 0x-prefixed upper-case hex (SQL Server literal form)
//   - time.Time as RFC 3339 with nanoseconds
//   - maps and slices as JSON
//   - anything else through fmt
func DefaultFallback(_ schema.ColumnDescriptor, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return "0x" + strings.ToUpper(hex.EncodeToString(x)), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return x.String(), nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return fmt.Sprint(v), nil
}

// ApplyFallback rewrites every non-nil, non-string TagOther value of row in
// place. A nil fn means DefaultFallback.
func ApplyFallback(cols []schema.ColumnDescriptor, row schema.Row, fn Fallback) error {
	if fn == nil {
		fn = DefaultFallback
	}
	for i, c := range cols {
		if c.Tag != schema.TagOther || row[i] == nil {
			continue
		}
		if _, ok := row[i].(string); ok {
			continue
		}
		s, err := fn(c, row[i])
		if err != nil {
			return errors.Wrapf(err, "fallback for column %q (%s)", c.Name, c.TypeName)
		}
		row[i] = s
	}
	return nil
}
