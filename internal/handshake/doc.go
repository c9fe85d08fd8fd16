// Package handshake implements the ready-line handshake between an initiator and a
// responder sharing one full-duplex bus.
//
// The responder arms a transaction and raises the ready line (LineDriver). The
// initiator observes the rising edge through a Debouncer, which sets a ReadyGate.
// The Initiator loop waits on the gate, performs the transfer and paces itself;
// the Responder loop re-arms after every completed transfer.
//
// This package has no hardware dependencies. Bus engines, ready lines and sensors
// are supplied through small interfaces, and time is injectable where it matters.
package handshake
