package table

import (
	"strings"

	"github.com/danthegoodman1/tablesync/utils"
)

type (
	// ImportMode is one of Append, Overwrite or Dedupe.
	ImportMode interface {
		isImportMode()
		String() string
	}

	Append    struct{}
	Overwrite struct{}

	// Dedupe merges rows on the primary key, or on the cursor when no primary
	// key is declared. Each key is a path of nested field names.
	Dedupe struct {
		PrimaryKey [][]string
		Cursor     []string
	}
)

func (Append) isImportMode()    {}
func (Overwrite) isImportMode() {}
func (Dedupe) isImportMode()    {}

func (Append) String() string    { return "append" }
func (Overwrite) String() string { return "overwrite" }
func (Dedupe) String() string    { return "dedupe" }

// ParseImportMode resolves a mode name. The soft_delete and update modes are
// recognized but unsupported.
func ParseImportMode(name string, primaryKey [][]string, cursor []string) (ImportMode, error) {
	switch strings.ToLower(name) {
	case "append":
		return Append{}, nil
	case "overwrite":
		return Overwrite{}, nil
	case "dedupe":
		return Dedupe{PrimaryKey: primaryKey, Cursor: cursor}, nil
	case "soft_delete", "update":
		return nil, utils.NewConfigError("unsupported sync mode: %s", name)
	}
	return nil, utils.NewConfigError("unknown sync mode: %s", name)
}
