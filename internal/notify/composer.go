// Package notify turns a departure board into the SMS a caller receives
// and delivers it through the SMS gateway.
package notify

import (
	"fmt"
	"strings"

	"github.com/trntxt/trntxt/internal/rail"
)

// Estimated-departure values that suppress the "(expected ...)" suffix.
// The first service compares against "On time" and the remainder against
// "On Time"; upstream boards report the lowercase form, so later services
// in practice always carry the suffix. Both literals are kept as-is
// because subscribers have come to rely on the produced text.
const (
	onTimeFirst = "On time"
	onTimeRest  = "On Time"
)

// Compose renders the SMS body for a departure board. transcript is the
// raw dictation text, echoed back verbatim when the board carries no
// services (or when board is nil) so the caller can see what was heard.
func Compose(board *rail.Board, transcript string) string {
	if board == nil || len(board.Services) == 0 {
		return fmt.Sprintf("I heard \"%s\". I couldn't find any services.", transcript)
	}

	var b strings.Builder
	first := board.Services[0]

	if board.ToStation != nil {
		fmt.Fprintf(&b, "The next train to %s from %s will be the %s",
			board.ToStation.Name, board.FromStation.Name, first.Scheduled)
	} else {
		fmt.Fprintf(&b, "The next train from %s will be the %s",
			board.FromStation.Name, first.Scheduled)
	}
	if first.Estimated != onTimeFirst {
		fmt.Fprintf(&b, " (expected %s)", first.Estimated)
	}
	if board.FromStation.Name != first.Origin.Name {
		fmt.Fprintf(&b, " to %s", first.Origin.Name)
	}
	if first.Platform != "" {
		fmt.Fprintf(&b, " from platform %s", first.Platform)
	}
	b.WriteString(".")

	rest := board.Services[1:]
	if len(rest) > 2 {
		rest = rest[:2]
	}
	if len(rest) > 0 {
		b.WriteString(" Also,")
		for i, svc := range rest {
			fmt.Fprintf(&b, " %s", svc.Scheduled)
			if svc.Estimated != onTimeRest {
				fmt.Fprintf(&b, " (expected %s)", svc.Estimated)
			}
			fmt.Fprintf(&b, " to %s", svc.Origin.Name)
			if svc.Platform != "" {
				fmt.Fprintf(&b, ", P%s", svc.Platform)
			}
			if i == len(rest)-1 {
				b.WriteString(".")
			} else {
				b.WriteString(";")
			}
		}
	}
	return b.String()
}
