// Package main hosts the vmfleet CLI entrypoint and command graph.
//
// The Cobra command tree drives the lifecycle daemon through its PID file:
// start and restart spawn the hidden `daemon` subcommand as a detached
// process, while stop, status and logs re-attach through the PID and log
// files alone. Configuration is resolved once per invocation and shared by
// every subcommand through commandContext.
package main
