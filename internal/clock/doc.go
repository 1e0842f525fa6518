// Package clock abstracts wall-clock time and timer scheduling for the scan
// engines.
//
// Engines never call time.Now or time.AfterFunc directly. They receive a
// Clock, which lets the scan lifecycle arm its progress tick and absolute
// deadline against real time in production and against a manually advanced
// Fake in tests.
//
// # Usage Example
//
//	c := clock.NewFake(time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC))
//	c.AfterFunc(15*time.Second, func() { fmt.Println("deadline") })
//	c.Advance(15 * time.Second) // prints "deadline"
//
// # Thread Safety
//
// Both implementations are safe for concurrent use. Fake invokes timer
// callbacks on the goroutine that calls Advance, never while holding its own
// lock, so callbacks may schedule or stop other timers.
package clock
