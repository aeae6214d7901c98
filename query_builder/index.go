package query_builder

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spaolacci/murmur3"
)

// IndexName derives a repeatable index name from the dotted table name and
// the indexed columns. Column order does not change the name. The result is
// at most maxLen bytes.
func IndexName(fqTableName string, columns []string, maxLen int) string {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	suffix := "_" + shortHash(sorted)

	prefix := strings.ReplaceAll(fqTableName, ".", "_")
	if room := maxLen - len(suffix); len(prefix) > room {
		prefix = prefix[:room]
		for len(prefix) > 0 && !utf8.ValidString(prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix + suffix
}

func shortHash(columns []string) string {
	return fmt.Sprintf("%08x", murmur3.Sum32([]byte(strings.Join(columns, "\x00"))))
}
