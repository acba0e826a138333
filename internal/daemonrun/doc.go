// Package daemonrun wires signal handling around daemon startup and shutdown
// so both the CLI and the standalone binary share one entry point.
package daemonrun
