// Package schema holds the column model shared by the source cursors, the
// type mapper and the rowgroup writer: source column descriptors on one side,
// the derived target schema on the other, and the positional rows that flow
// between them.
package schema

import "fmt"

// SourceTypeTag classifies a source column independently of the database that
// produced it. Dialect packages translate their native type names into tags.
type SourceTypeTag int

const (
	// TagUnknown is the zero value; it never maps to a target type.
	TagUnknown SourceTypeTag = iota
	TagInteger
	TagDecimal
	TagFloat
	TagText
	TagBinary
	TagDate
	TagTime
	TagDateTime
	TagBoolean
	// TagOther marks types the driver cannot decode natively (geography,
	// interval, uuid, ...). Their values are rendered as text by the cursor's
	// fallback converter before they reach the pipeline.
	TagOther
)

var tagNames = [...]string{
	TagUnknown:  "unknown",
	TagInteger:  "integer",
	TagDecimal:  "exact-decimal",
	TagFloat:    "floating-point",
	TagText:     "text",
	TagBinary:   "binary",
	TagDate:     "date-only",
	TagTime:     "time-only",
	TagDateTime: "date-and-time",
	TagBoolean:  "boolean",
	TagOther:    "other",
}

func (t SourceTypeTag) String() string {
	if t >= 0 && int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// ColumnDescriptor describes one column of a result set as reported by the
// source cursor. It is produced once per export and never modified.
type ColumnDescriptor struct {
	Name      string
	Tag       SourceTypeTag
	Precision int
	Scale     int
	Nullable  bool

	// TypeName is the driver's native type name (e.g. "NVARCHAR",
	// "GEOGRAPHY"). Informational only; mapping uses Tag.
	TypeName string
}

func (d ColumnDescriptor) String() string {
	return fmt.Sprintf("%s %s(%d,%d) nullable=%t native=%s",
		d.Name, d.Tag, d.Precision, d.Scale, d.Nullable, d.TypeName)
}

// TargetKind is the resolved columnar type of a schema column.
type TargetKind int

const (
	KindInvalid TargetKind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindDecimal
	KindFloat32
	KindFloat64
	KindString
	KindBinary
	KindDate32
	KindTimeMillis
	KindTimestampMillis
	KindBool
)

var kindNames = [...]string{
	KindInvalid:         "invalid",
	KindInt8:            "int8",
	KindInt16:           "int16",
	KindInt32:           "int32",
	KindInt64:           "int64",
	KindDecimal:         "decimal",
	KindFloat32:         "float32",
	KindFloat64:         "float64",
	KindString:          "string",
	KindBinary:          "binary",
	KindDate32:          "date32",
	KindTimeMillis:      "time32[ms]",
	KindTimestampMillis: "timestamp[ms]",
	KindBool:            "bool",
}

func (k TargetKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ColumnType is one entry of the target schema.
type ColumnType struct {
	Name     string
	Kind     TargetKind
	Nullable bool

	// Precision and Scale are meaningful for KindDecimal only and are copied
	// verbatim from the source descriptor.
	Precision int
	Scale     int
}

func (c ColumnType) String() string {
	if c.Kind == KindDecimal {
		return fmt.Sprintf("%s decimal(%d,%d) nullable=%t", c.Name, c.Precision, c.Scale, c.Nullable)
	}
	return fmt.Sprintf("%s %s nullable=%t", c.Name, c.Kind, c.Nullable)
}

// Schema is the ordered, immutable list of target columns, 1:1 and in order
// with the source descriptors it was derived from.
type Schema struct {
	columns []ColumnType
}

// NewSchema copies cols into a new Schema.
func NewSchema(cols []ColumnType) *Schema {
	out := make([]ColumnType, len(cols))
	copy(out, cols)
	return &Schema{columns: out}
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Column returns the i-th column.
func (s *Schema) Column(i int) ColumnType { return s.columns[i] }

// Columns returns a copy of the columns.
func (s *Schema) Columns() []ColumnType {
	out := make([]ColumnType, len(s.columns))
	copy(out, s.columns)
	return out
}

// Row is one result row; values are aligned with the schema by position. A nil
// value is an explicit null.
type Row []any

// RowBatch is an ordered group of rows. An empty batch signals exhaustion.
type RowBatch []Row

// Len returns the number of rows in the batch.
func (b RowBatch) Len() int { return len(b) }
