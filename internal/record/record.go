// Package record defines the pool-resident Record value and the Schema /
// FieldInfo types used to describe its serialized layout. Grounded on
// original_source/src/common/schema.h (field_info, schema.display) and on
// the teacher's UndoLogEntry/RedoLogEntry field layouts for how a fixed
// record is serialized to a log.
package record

import (
	"fmt"

	"github.com/Legend147/nstore/internal/pmem"
)

// Record is a (key, value) pair. A Record may be pool-resident (its Value
// lives inside a pmem.Pool allocation, referenced by Ptr) or purely
// volatile (held in an LSM memtable before it is ever durable).
type Record struct {
	Key   uint32
	Value []byte
}

// New copies value into a fresh pool allocation and activates it,
// returning the pool-resident Record plus the pointer to its value bytes.
func New(p *pmem.Pool, key uint32, value []byte) (Record, pmem.Ptr, error) {
	ptr, err := p.Reserve(len(value))
	if err != nil {
		return Record{}, 0, err
	}
	copy(p.Bytes(ptr, len(value)), value)
	if err := p.Activate(ptr); err != nil {
		return Record{}, 0, err
	}
	return Record{Key: key, Value: p.Bytes(ptr, len(value))}, ptr, nil
}

// FieldType tags the primitive kind of a serialized field.
type FieldType uint8

const (
	FieldInt FieldType = iota
	FieldUint
	FieldBytes
	FieldString
)

// FieldInfo describes one column's position and encoding within a
// schema's serialized form.
type FieldInfo struct {
	Offset   int
	SerLen   int
	DeserLen int
	Type     FieldType
	Inlined  bool
	Enabled  bool
}

// Schema is an immutable, pool-resident, ordered list of fields.
type Schema struct {
	Columns  []FieldInfo
	SerLen   int
	DeserLen int
}

// NewSchema builds a Schema from columns, computing aggregate lengths, and
// activates its pool-resident copy.
func NewSchema(p *pmem.Pool, columns []FieldInfo) (*Schema, pmem.Ptr, error) {
	s := &Schema{Columns: append([]FieldInfo(nil), columns...)}
	for _, c := range s.Columns {
		s.SerLen += c.SerLen
		s.DeserLen += c.DeserLen
	}

	// Columns are pool-resident so that a schema reachable from a root
	// pointer survives restart; the Go struct itself stays volatile,
	// rebuilt from the pool bytes on recovery by the caller.
	raw := encodeColumns(s.Columns)
	ptr, err := p.Reserve(len(raw))
	if err != nil {
		return nil, 0, err
	}
	copy(p.Bytes(ptr, len(raw)), raw)
	if err := p.Activate(ptr); err != nil {
		return nil, 0, err
	}

	return s, ptr, nil
}

func encodeColumns(cols []FieldInfo) []byte {
	buf := make([]byte, 0, len(cols)*11)
	for _, c := range cols {
		buf = append(buf,
			byte(c.Offset), byte(c.Offset>>8),
			byte(c.SerLen), byte(c.SerLen>>8),
			byte(c.DeserLen), byte(c.DeserLen>>8),
			byte(c.Type),
			boolByte(c.Inlined),
			boolByte(c.Enabled),
		)
	}
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// String implements fmt.Stringer as a diagnostic display, the Go
// equivalent of the original schema::display().
func (s *Schema) String() string {
	out := ""
	for _, c := range s.Columns {
		out += fmt.Sprintf("offset: %-4d ser_len: %-4d deser_len: %-4d type: %-2d inlined: %-2v enabled: %-2v\n",
			c.Offset, c.SerLen, c.DeserLen, c.Type, c.Inlined, c.Enabled)
	}
	return out
}
