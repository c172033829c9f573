// Package lynx speaks the serial protocol of the Optec FocusLynx focuser hub.
//
// A Hub owns the link to the controller and serializes every exchange on it.
// Each of the two focuser channels is driven by a Focuser, which encodes
// commands, decodes the status and configuration blocks and tracks motion
// until the controller reports it finished.
//
// Commands are framed as "<" + target + body + ">" where target is FH for the
// hub and F1 or F2 for a focuser. The controller acknowledges a command with a
// "!" line followed by the reply, or answers "ER=<code> <text>" on error.
//
// Simulator implements Transport with an in-memory controller for tests and
// for running without hardware.
package lynx
