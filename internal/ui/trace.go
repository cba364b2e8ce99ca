package ui

import (
	"fmt"
	"strings"
	"time"
)

// Trace renders one executed statement as a muted line:
//
//	[select Post 1.2ms] SELECT ... -- args: [1 2]
func Trace(op, entity, sql string, args []any, elapsed time.Duration, err error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s", op)
	if entity != "" {
		fmt.Fprintf(&sb, " %s", entity)
	}
	fmt.Fprintf(&sb, " %s] %s", elapsed.Round(time.Microsecond), sql)
	if len(args) > 0 {
		fmt.Fprintf(&sb, " -- args: %v", args)
	}
	line := Muted.Render(sb.String())
	if err != nil {
		line += " " + Error(err.Error())
	}
	return line
}
