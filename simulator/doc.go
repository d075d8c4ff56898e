// Package simulator provides an in-memory ESP32 OTA receiver.
//
// A Device implements the link transport interfaces: it answers the OTA
// parameters with a mode announcement, reassembles pieces into parts,
// requests the next part in normal mode and reports Installing once the
// whole image has arrived. It can drop the link once at a chosen part and
// refuse a number of connect attempts, which makes it suitable for testing
// the reconnect path and for the "simulate" command.
//
//	dev := simulator.NewDevice(simulator.DefaultConfig())
//	defer dev.Close()
//	mgr := link.NewManager(simulator.NewTransport(dev))
package simulator
