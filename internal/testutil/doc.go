// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing sessions and events, plus a RunHarness that
// plays the runner's part when driving a single agent. Not for production use.
package testutil
