package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/partd/internal/types"
)

// Scenario is a sequence of partition commands with assertions on their
// outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are applied in order, each in its own transaction.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one command. Exactly one of the command fields is set.
type Step struct {
	Invoke        *InvokeStep    `yaml:"invoke,omitempty"`
	Append        *AppendStep    `yaml:"append,omitempty"`
	Complete      *CompleteStep  `yaml:"complete,omitempty"`
	Respond       *RespondStep   `yaml:"respond,omitempty"`
	FireTimer     *TimerStep     `yaml:"fire_timer,omitempty"`
	Terminate     *TerminateStep `yaml:"terminate,omitempty"`
	DeliverOutbox bool           `yaml:"deliver_outbox,omitempty"`

	// Dedup delivers the command as message Index of Producer.
	Dedup *DedupSpec `yaml:"dedup,omitempty"`

	// ExpectError is the error code the command must fail with, for example
	// UNKNOWN_INVOCATION. Empty means the command must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`

	// ExpectDropped requires the command to be a no-op.
	ExpectDropped bool `yaml:"expect_dropped,omitempty"`
}

// InvokeStep starts invocation ID of Service[Key].
type InvokeStep struct {
	ID       uint64 `yaml:"id"`
	Service  string `yaml:"service"`
	Key      string `yaml:"key"`
	Method   string `yaml:"method"`
	Argument string `yaml:"argument,omitempty"`

	// Ingress sends the result to this ingress endpoint.
	Ingress string `yaml:"ingress,omitempty"`

	// Caller and CallerIndex send the result to an entry of another
	// invocation.
	Caller      uint64 `yaml:"caller,omitempty"`
	CallerIndex uint32 `yaml:"caller_index,omitempty"`
}

// AppendStep appends a journal entry to invocation ID. Entry is an entry
// kind name as printed by types.EntryKind; the remaining fields apply to
// the kinds that use them.
type AppendStep struct {
	ID    uint64 `yaml:"id"`
	Entry string `yaml:"entry"`

	// get_state, set_state, clear_state
	Key string `yaml:"key,omitempty"`

	// set_state value, output_stream and completed entry results
	Value   *string      `yaml:"value,omitempty"`
	Failure *FailureSpec `yaml:"failure,omitempty"`

	// sleep
	WakeUpTime uint64 `yaml:"wake_up_time,omitempty"`

	// invoke, background_invoke
	Service           string       `yaml:"service,omitempty"`
	Method            string       `yaml:"method,omitempty"`
	Parameter         string       `yaml:"parameter,omitempty"`
	Target            uint64       `yaml:"target,omitempty"`
	TargetKey         string       `yaml:"target_key,omitempty"`
	ResolutionFailure *FailureSpec `yaml:"resolution_failure,omitempty"`

	// complete_awakeable
	Awakeable *EntryRef `yaml:"awakeable,omitempty"`

	// custom
	Code        uint16 `yaml:"code,omitempty"`
	RequiresAck bool   `yaml:"requires_ack,omitempty"`
}

// CompleteStep completes entry Index of invocation ID. With neither Value,
// Failure nor Ack set the completion is empty.
type CompleteStep struct {
	ID      uint64       `yaml:"id"`
	Index   uint32       `yaml:"index"`
	Value   *string      `yaml:"value,omitempty"`
	Failure *FailureSpec `yaml:"failure,omitempty"`
	Ack     bool         `yaml:"ack,omitempty"`
}

// RespondStep delivers a callee response for entry Index of invocation ID.
type RespondStep struct {
	ID      uint64       `yaml:"id"`
	Index   uint32       `yaml:"index"`
	Value   *string      `yaml:"value,omitempty"`
	Failure *FailureSpec `yaml:"failure,omitempty"`
}

// TimerStep fires the timer of entry Index of invocation ID.
type TimerStep struct {
	ID        uint64 `yaml:"id"`
	Index     uint32 `yaml:"index"`
	Timestamp uint64 `yaml:"timestamp"`
}

// TerminateStep ends invocation ID with a failure.
type TerminateStep struct {
	ID      uint64 `yaml:"id"`
	Code    int32  `yaml:"code"`
	Message string `yaml:"message"`
}

// FailureSpec is an error code and message.
type FailureSpec struct {
	Code    int32  `yaml:"code"`
	Message string `yaml:"message"`
}

// EntryRef addresses a journal entry of an invocation.
type EntryRef struct {
	ID    uint64 `yaml:"id"`
	Index uint32 `yaml:"index"`
}

// DedupSpec marks a command as a deduplicated message.
type DedupSpec struct {
	Producer string `yaml:"producer"`
	Index    uint64 `yaml:"index"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// ID selects an invocation (status, journal_length, inbox, state).
	ID uint64 `yaml:"id,omitempty"`

	// Expect is the expected status kind (status) or state value (state).
	Expect string `yaml:"expect,omitempty"`

	// WaitingFor lists the entries a suspended invocation waits for.
	WaitingFor []uint32 `yaml:"waiting_for,omitempty"`

	// Effects is the expected effect order (effect_order).
	Effects []string `yaml:"effects,omitempty"`

	// Effect is the counted effect kind (effect_count).
	Effect string `yaml:"effect,omitempty"`

	// Count is the expected number (journal_length, effect_count, outbox,
	// inbox, timers).
	Count int `yaml:"count"`

	// Key is the user state key (state).
	Key string `yaml:"key,omitempty"`

	// Absent requires the state key to be unset (state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion types.
const (
	AssertStatus        = "status"
	AssertJournalLength = "journal_length"
	AssertEffectOrder   = "effect_order"
	AssertEffectCount   = "effect_count"
	AssertOutbox        = "outbox"
	AssertInbox         = "inbox"
	AssertTimers        = "timers"
	AssertState         = "state"
)

var assertionTypes = map[string]bool{
	AssertStatus:        true,
	AssertJournalLength: true,
	AssertEffectOrder:   true,
	AssertEffectCount:   true,
	AssertOutbox:        true,
	AssertInbox:         true,
	AssertTimers:        true,
	AssertState:         true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file of dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	for i, a := range s.Assertions {
		if !assertionTypes[a.Type] {
			return fmt.Errorf("assertion %d: unknown type %q", i+1, a.Type)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	for _, present := range []bool{
		step.Invoke != nil,
		step.Append != nil,
		step.Complete != nil,
		step.Respond != nil,
		step.FireTimer != nil,
		step.Terminate != nil,
		step.DeliverOutbox,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one command is required, got %d", set)
	}

	if step.Invoke != nil {
		if step.Invoke.ID == 0 {
			return fmt.Errorf("invoke: id must be positive")
		}
		if step.Invoke.Service == "" || step.Invoke.Method == "" {
			return fmt.Errorf("invoke: service and method are required")
		}
	}
	if step.Append != nil {
		if _, err := types.ParseEntryKind(step.Append.Entry); err != nil {
			return fmt.Errorf("append: %w", err)
		}
	}
	if step.DeliverOutbox && step.Dedup != nil {
		return fmt.Errorf("deliver_outbox assigns its own dedup indices")
	}
	return nil
}
