package binder

import (
	"fmt"

	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/jackc/pgtype"
)

var keyConnInfo = pgtype.NewConnInfo()

// KeyText renders v the way it would be bound into the key column col, so
// two values with equal text are equal to the database after the cast:
// numbers are rounded to the column scale and trailing zeros dropped. It
// returns false when the value would bind NULL, which never matches in a
// MERGE.
func (b *Binder) KeyText(col table.Column, v logical.Value) (string, bool) {
	scratch := *b
	scratch.Policy = NullOnOverflow
	var meta table.Meta
	arg, err := logical.Visit[interface{}](col.Type, &valueBinder{
		binder:  &scratch,
		column:  col.Name,
		value:   v,
		meta:    &meta,
		indexed: true,
	})
	if err != nil || arg == nil {
		return "", false
	}

	switch a := arg.(type) {
	case string:
		return a, true
	case pgtype.Value:
		if a.Get() == nil {
			return "", false
		}
	}
	enc, ok := arg.(pgtype.TextEncoder)
	if !ok {
		return fmt.Sprint(arg), true
	}
	buf, err := enc.EncodeText(keyConnInfo, nil)
	if err != nil || buf == nil {
		return "", false
	}
	return string(buf), true
}
