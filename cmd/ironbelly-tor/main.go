// Package main provides the entry point for the ironbelly-tor CLI.
//
// ironbelly-tor runs the Tor client that the Ironbelly wallet routes its
// Grin traffic through. It launches tor with a fixed argument set,
// authenticates on the control port with the cookie file and reports the
// bootstrap progress until the process exits.
//
// Usage:
//
//	ironbelly-tor run
//	ironbelly-tor check
//	ironbelly-tor history --markdown
//
// See --help for all available options.
package main

func main() {
	Execute()
}
