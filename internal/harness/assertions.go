package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/types"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", event.Step, event.Command)
		for _, effect := range event.Effects {
			fmt.Fprintf(&buf, "        -> %s\n", effect)
		}
	}

	return buf.String()
}

// evaluate checks every assertion and returns the failure messages.
func (h *Harness) evaluate(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := h.check(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return failures
}

func (h *Harness) check(result *Result, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: result.Trace}
	}

	switch a.Type {
	case AssertEffectOrder:
		return assertEffectOrder(result.Trace, a.Effects, fail)
	case AssertEffectCount:
		got := countEffects(result.Trace, a.Effect)
		if got != a.Count {
			return fail(fmt.Sprintf("%d %s effects", a.Count, a.Effect), fmt.Sprintf("%d", got))
		}
		return nil
	}

	var (
		got    int
		actual string
	)
	err := h.store.View(h.ctx, func(tx *store.Tx) error {
		switch a.Type {
		case AssertOutbox:
			return tx.ScanOutbox(h.ctx, Partition, func(types.MessageIndex, types.OutboxMessage) error {
				got++
				return nil
			})
		case AssertTimers:
			return tx.ScanTimers(h.ctx, Partition, func(types.TimerKey) error {
				got++
				return nil
			})
		}

		id, err := h.lookup(a.ID)
		if err != nil {
			return err
		}
		switch a.Type {
		case AssertInbox:
			return tx.ScanInbox(h.ctx, id.ServiceID, func(types.InboxEntry) error {
				got++
				return nil
			})
		case AssertState:
			value, ok, err := tx.GetUserState(h.ctx, id.ServiceID, []byte(a.Key))
			if err != nil {
				return err
			}
			if ok {
				actual = string(value)
				got = 1
			}
			return nil
		}

		status, err := tx.GetStatus(h.ctx, id.ServiceID)
		if err != nil {
			return err
		}
		if a.Type == AssertJournalLength {
			if meta, ok := status.JournalMetadata(); ok {
				got = int(meta.Length)
			}
			return nil
		}
		actual = status.Kind.String()
		if a.Expect == actual && len(a.WaitingFor) > 0 {
			waiting := make([]uint32, 0, len(status.WaitingFor()))
			for _, idx := range status.WaitingFor() {
				waiting = append(waiting, uint32(idx))
			}
			slices.Sort(waiting)
			expected := slices.Clone(a.WaitingFor)
			slices.Sort(expected)
			if !slices.Equal(expected, waiting) {
				actual = fmt.Sprintf("%s waiting for %v", actual, waiting)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch a.Type {
	case AssertStatus:
		if actual != a.Expect {
			expected := a.Expect
			if len(a.WaitingFor) > 0 {
				expected = fmt.Sprintf("%s waiting for %v", a.Expect, a.WaitingFor)
			}
			return fail(expected, actual)
		}
	case AssertState:
		switch {
		case a.Absent && got == 1:
			return fail(fmt.Sprintf("no value for %q", a.Key), fmt.Sprintf("%q", actual))
		case !a.Absent && got == 0:
			return fail(fmt.Sprintf("%q for %q", a.Expect, a.Key), "no value")
		case !a.Absent && actual != a.Expect:
			return fail(fmt.Sprintf("%q for %q", a.Expect, a.Key), fmt.Sprintf("%q", actual))
		}
	default:
		if got != a.Count {
			return fail(fmt.Sprintf("%s count %d", a.Type, a.Count), fmt.Sprintf("%d", got))
		}
	}
	return nil
}

// assertEffectOrder checks that the effect kinds appear in the given order.
// Other effects may appear in between.
func assertEffectOrder(trace []TraceEvent, expected []string, fail func(expected, actual string) error) error {
	var seen []string
	next := 0
	for _, event := range trace {
		for _, kind := range event.kinds {
			seen = append(seen, kind.String())
			if next < len(expected) && kind.String() == expected[next] {
				next++
			}
		}
	}
	if next < len(expected) {
		return fail(
			fmt.Sprintf("effects in order: %v", expected),
			fmt.Sprintf("%v (missing %s)", seen, expected[next]),
		)
	}
	return nil
}

func countEffects(trace []TraceEvent, kind string) int {
	n := 0
	for _, event := range trace {
		for _, k := range event.kinds {
			if k.String() == kind {
				n++
			}
		}
	}
	return n
}
