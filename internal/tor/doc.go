// Package tor speaks to a running Tor process.
//
// It contains the pieces of the Tor proxy supervisor that talk to Tor
// directly and carry no scheduling policy of their own:
//
//   - ControlConn: a synchronous client for the text based control
//     protocol (AUTHENTICATE, GETINFO, SIGNAL) over one TCP connection.
//   - ParseBootstrapPhase: turns a status/bootstrap-phase line into a
//     BootstrapStatus value.
//   - State: the lifecycle value broadcast to consumers of the supervisor.
//   - SocksProbe: a SOCKS5 handshake check and dialer for the proxy port,
//     plus Reach for testing a peer's onion service.
//   - ParseOnionTarget and OnionAddressFromKey: v3 onion address handling
//     with checksum validation.
//
// Retry, backoff and health-check policy live in the supervisor package.
// Nothing here retries; every call either completes or returns an error
// wrapping one of the sentinel errors in errors.go.
package tor
