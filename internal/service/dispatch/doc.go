// Package dispatch implements the campaign dispatch controller.
//
// The service layer owns the campaign and contact send state machines: it
// validates and starts a dispatch, walks the contact list sequentially with
// the configured inter-send delay, and computes the terminal campaign
// status. It depends on repository interfaces defined in this package and
// should never import from api/.
//
// Repository implementations live in repository/postgres/.
package dispatch
