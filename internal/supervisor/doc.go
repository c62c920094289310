// Package supervisor launches a Tor client process, connects to its control
// port and keeps the rest of the application informed about its state.
//
// A run goes through these steps:
//
//  1. Install static resources (GeoIP files, torrc) and locate the binary.
//     A failure here publishes Failed and nothing is spawned.
//  2. Publish Initializing and start the process.
//  3. Connect to the control port and authenticate with the cookie file,
//     retrying every RetryDelay until ConnectTimeout has elapsed since the
//     first attempt.
//  4. Poll status/bootstrap-phase immediately, then every PollInterval,
//     publishing Running with the parsed progress. The first failed poll
//     publishes Failed; there is no retry once authenticated.
//
// Failed ends the run. If the monitor gave up, the process is interrupted,
// and killed after StopGrace if it is still there. When the process exits,
// for any reason, Failed is published. A new run is started with another
// call to Start, which first waits for a stopping run to end.
//
// # Usage
//
//	sup := supervisor.New(cfg, supervisor.WithLogger(logger))
//	sup.Subscribe("ui", func(st tor.State) {
//	    fmt.Println(st.Status())
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Shutdown()
package supervisor
