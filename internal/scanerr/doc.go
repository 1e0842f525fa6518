// Package scanerr defines the error taxonomy shared by the discovery engines,
// the session aggregator and the persistence adapters.
//
// Every failure is an *Error carrying a Kind. Callers match on kind with
// errors.Is against the exported sentinels:
//
//	if errors.Is(err, scanerr.ErrChannelUnavailable) {
//	    var se *scanerr.Error
//	    errors.As(err, &se)
//	    fmt.Println("radio unavailable:", se.Cause)
//	}
//
// Precondition failures (ChannelUnavailable, DeviceNotFound,
// AlreadyConnectedOrConnecting, AlreadyRunning) are returned synchronously.
// ConnectionFailed arrives through a connect result handler, ChannelFailed
// through an engine's error observer, and PersistenceFailed from the session
// store.
package scanerr
