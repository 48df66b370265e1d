// Package exitcodes defines the standard exit codes used by cluster-acceptor.
package exitcodes

// Exit code constants used by cluster-acceptor
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every matrix invocation passes
// * TestFailure (1): Used when one or more invocations fail
// * RuntimeErr (2): Used for runtime errors such as panics, timeouts or other failures
const (
	Success     = 0 // All invocations pass
	TestFailure = 1 // Invocation failures
	RuntimeErr  = 2 // Runtime errors or timeouts
)
