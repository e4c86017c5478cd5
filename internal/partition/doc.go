// Package partition implements the partition processor: the single writer
// that applies invocation commands to the state of one partition.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// Each partition processes its commands in one goroutine. Invocation status,
// journals, inbox, outbox, timers and user state of the partition's keys are
// only ever mutated there, so no two commands race.
//
// Command Processing Flow:
// 1. Commands are enqueued FIFO (Propose waits for the outcome, Enqueue does not)
// 2. Processor.Run() dequeues one command at a time
// 3. StateMachine.Apply() performs the transition inside one storage transaction
// 4. On commit, effects are handed to the registered EffectHandlers
//
// A failed transaction leaves no trace: no status, journal, inbox or outbox
// write becomes visible and no effect is dispatched.
//
// Status transitions:
//
//	Free -> Invoked        Invoke on a free service instance, or inbox head after End
//	Invoked -> Suspended   append of an entry awaiting a completion
//	Suspended -> Invoked   last awaited completion arrived
//	Invoked -> Free        output entry or Terminate (End)
package partition
