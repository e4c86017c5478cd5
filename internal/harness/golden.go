package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the trace of result as golden file content, one command
// per line followed by its effects:
//
//  2. append_entry cart["user-42"](...) sleep [seq=2 entry=0]
//     -> timer_registered timer(cart["user-42"](...), entry=0, at=1000)
//
// The output depends only on the scenario, never on wall-clock time or
// random ids.
func Snapshot(scenarioName string, result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)
	for _, event := range result.Trace {
		fmt.Fprintf(&buf, "%d. %s", event.Step, event.Command)
		if attrs := eventAttrs(event); len(attrs) > 0 {
			fmt.Fprintf(&buf, " [%s]", strings.Join(attrs, " "))
		}
		buf.WriteByte('\n')
		for _, effect := range event.Effects {
			fmt.Fprintf(&buf, "   -> %s\n", effect)
		}
	}
	return buf.Bytes()
}

func eventAttrs(event TraceEvent) []string {
	var attrs []string
	if event.Seq > 0 {
		attrs = append(attrs, fmt.Sprintf("seq=%d", event.Seq))
	}
	if event.EntryIndex != nil {
		attrs = append(attrs, fmt.Sprintf("entry=%d", *event.EntryIndex))
	}
	if event.Ack != "" {
		attrs = append(attrs, "ack="+event.Ack)
	}
	if event.Dropped {
		attrs = append(attrs, "dropped")
	}
	if event.Error != "" {
		attrs = append(attrs, "error="+event.Error)
	}
	return attrs
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check assertions, or an error if the
// scenario could not run. A trace mismatch fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
