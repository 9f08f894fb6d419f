// Package logstream filters the daemon log by VM, minimum level and free
// text on top of the controller's tail and follow primitives.
package logstream
