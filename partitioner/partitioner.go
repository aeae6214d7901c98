package partitioner

import (
	"fmt"
	"strings"
	"time"

	"github.com/danthegoodman1/tablesync/logical"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/danthegoodman1/tablesync/utils"
)

type (
	// PartitionPlan derives one path segment, `As=value`, from a record.
	PartitionPlan struct {
		Func string   `json:"func" validate:"required"`
		Args []string `json:"args"`
		As   string   `json:"as" validate:"required"`
	}

	PartitionFunc func(rec table.Record, args []string) (string, error)
)

const (
	// NowArg partitions by the current time instead of a column.
	NowArg = "now()"
	// ExtractedAtArg partitions by the record's extraction time.
	ExtractedAtArg = "extracted_at()"
)

var (
	Functions = map[string]PartitionFunc{
		"toDay":      timeFunc(func(t time.Time) string { return fmt.Sprint(t.Day()) }),
		"toMonth":    timeFunc(func(t time.Time) string { return fmt.Sprint(int(t.Month())) }),
		"toYear":     timeFunc(func(t time.Time) string { return fmt.Sprint(t.Year()) }),
		"toYearDay":  timeFunc(func(t time.Time) string { return fmt.Sprint(t.YearDay()) }),
		"toYearWeek": timeFunc(func(t time.Time) string { _, w := t.ISOWeek(); return fmt.Sprint(w) }),
		"toWeekDay":  timeFunc(func(t time.Time) string { return fmt.Sprint(int(t.Weekday())) }),
	}

	ErrFuncNotFound = utils.PermError("partition function not found")

	ErrMissingArgs       = utils.PermError("missing args")
	ErrMissingColumns    = utils.PermError("missing one or more columns specified in args")
	ErrInvalidColumnType = utils.PermError("invalid column type")
)

func timeFunc(format func(time.Time) string) PartitionFunc {
	return func(rec table.Record, args []string) (string, error) {
		t, err := parseTimeArg(rec, args)
		if err != nil {
			return "", fmt.Errorf("error in parseTimeArg: %w", err)
		}
		return format(t.UTC()), nil
	}
}

// GetRecordPartition joins the segments of every plan into a path like
// `year=2024/month=3`. No plans means no partition.
func GetRecordPartition(rec table.Record, plans []PartitionPlan) (string, error) {
	var finalParts []string
	for _, plan := range plans {
		f, ok := Functions[plan.Func]
		if !ok {
			return "", fmt.Errorf("%s: %w", plan.Func, ErrFuncNotFound)
		}

		s, err := f(rec, plan.Args)
		if err != nil {
			return "", fmt.Errorf("error processing partition function %s: %w", plan.Func, err)
		}
		finalParts = append(finalParts, fmt.Sprintf("%s=%s", plan.As, s))
	}
	return strings.Join(finalParts, "/"), nil
}

func parseTimeArg(rec table.Record, args []string) (time.Time, error) {
	if len(args) == 0 {
		return time.Time{}, ErrMissingArgs
	}

	switch key := args[0]; key {
	case NowArg:
		return time.Now(), nil
	case ExtractedAtArg:
		return time.UnixMilli(rec.ExtractedAt), nil
	default:
		v := rec.Get(key)
		if logical.IsNull(v) {
			return time.Time{}, ErrMissingColumns
		}
		switch tv := v.(type) {
		case logical.DateValue:
			return tv.Value, nil
		case logical.TimestampWithTimezoneValue:
			return tv.Value, nil
		case logical.TimestampWithoutTimezoneValue:
			return tv.Value, nil
		case logical.IntegerValue:
			// epoch millis
			if !tv.Value.IsInt64() {
				return time.Time{}, ErrInvalidColumnType
			}
			return time.UnixMilli(tv.Value.Int64()), nil
		case logical.StringValue:
			t, err := time.Parse(time.RFC3339Nano, tv.Value)
			if err != nil {
				return time.Time{}, fmt.Errorf("error in time.Parse for string: %w", ErrInvalidColumnType)
			}
			return t, nil
		}
		return time.Time{}, ErrInvalidColumnType
	}
}
