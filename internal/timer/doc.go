// Package timer fires the timers of a partition.
//
// Timers are registered by the partition state machine, which stores their
// TimerKey together with the transition that created them. The Service keeps
// an in-memory queue ordered by wake-up time, reloads it from storage on
// start, and hands due timers back to the partition through a Firer.
//
// Firing is at-least-once: a timer that fires twice is answered as a
// duplicate by the state machine, and a timer lost in flight fires again
// after the next restart.
package timer
