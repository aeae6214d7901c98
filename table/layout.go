package table

import (
	"github.com/jackc/pgerrcode"
)

// Layout is the fixed description of the destination table conventions:
// reserved column names, the tolerated SQLSTATE and the numeric limits. Build
// it once with DefaultLayout and pass it by reference.
type Layout struct {
	RawIDColumn        string
	ExtractedAtColumn  string
	MetaColumn         string
	GenerationIDColumn string
	CdcDeletedAtColumn string

	// ObjectExistsCode is the SQLSTATE raised when two sessions race on
	// CREATE SCHEMA IF NOT EXISTS.
	ObjectExistsCode string

	// MaxDecimalIntegerDigits and DecimalScale bound NUMERIC(38, 9).
	MaxDecimalIntegerDigits int
	DecimalScale            int32

	// MaxIndexedStringLength bounds VARCHAR key columns.
	MaxIndexedStringLength int

	// MaxIdentifierLength is NAMEDATALEN - 1.
	MaxIdentifierLength int

	// MaxBindParameters is the protocol limit on parameters per statement.
	MaxBindParameters int
}

func DefaultLayout() *Layout {
	return &Layout{
		RawIDColumn:             "_raw_id",
		ExtractedAtColumn:       "_extracted_at",
		MetaColumn:              "_meta",
		GenerationIDColumn:      "_generation_id",
		CdcDeletedAtColumn:      "_cdc_deleted_at",
		ObjectExistsCode:        pgerrcode.UniqueViolation,
		MaxDecimalIntegerDigits: 29,
		DecimalScale:            9,
		MaxIndexedStringLength:  512,
		MaxIdentifierLength:     63,
		MaxBindParameters:       65535,
	}
}

// IsReserved reports whether name is one of the four metadata columns.
func (l *Layout) IsReserved(name string) bool {
	switch name {
	case l.RawIDColumn, l.ExtractedAtColumn, l.MetaColumn, l.GenerationIDColumn:
		return true
	}
	return false
}
