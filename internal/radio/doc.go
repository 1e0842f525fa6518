// Package radio discovers nearby devices from radio advertisements and manages
// connections to them.
//
// The Engine owns one lifecycle.Run, one device registry and a Correlator. It
// talks to the radio stack only through the Source interface: commands go out
// through Source, and events come back through the Listener methods the
// Engine implements. All engine state is guarded by a single mutex; result
// handlers, subscribers and source commands are always invoked after that
// mutex is released, so a Source may call back into the Engine from any
// goroutine but must not do so from inside a command call.
//
// # Scan Lifecycle
//
// A scan runs as follows:
//  1. StartScanning checks the power state and clears the previous run
//  2. Advertisements are merged by peripheral identity, strongest signal first
//  3. Progress events fire on every tick of the run
//  4. The run stops on its deadline, on StopScanning or on power loss
//  5. OnStopped hooks receive a capture of the devices found
//
// Losing power mid-run force-stops the run, keeps whatever was discovered,
// and fails every pending connect request.
//
// # Connections
//
// Connect delivers exactly one result per request unless a newer request for
// the same device replaces it. Disconnect updates the local status at once;
// the source's confirmation of that disconnect is absorbed, so it never fails
// a connect issued after it. A disconnect the engine did not ask for fails
// the pending request.
//
// # Usage Example
//
//	script, err := radio.LoadScript("radio.yaml")
//	if err != nil {
//	    return err
//	}
//	c := clock.System()
//	engine := radio.NewEngine(radio.NewReplaySource(c, script), radio.Options{Clock: c})
//
//	engine.OnStopped(func(cp session.Capture) {
//	    fmt.Printf("Found %d devices\n", len(cp.Radio))
//	})
//	if err := engine.StartScanning(15 * time.Second); err != nil {
//	    return err
//	}
//
// ReplaySource plays a YAML script of timed events through a clock.Clock. It
// backs the CLI on hosts without a radio stack and drives the engine tests.
package radio
