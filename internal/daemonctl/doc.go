// Package daemonctl supervises the vmfleet daemon from short-lived CLI
// processes.
//
// The PID file is the only channel between a Controller and the daemon it
// manages: start spawns a detached process and waits for that process to
// record itself, stop signals whatever PID the file names, and status reads
// the file's contents and modification time. A controller never holds a
// reference to a live daemon across invocations.
package daemonctl
