// Package emulator implements a software tile device.
//
// A Device behaves like real tile firmware on the bus: it announces
// ONLINE/OFFLINE (retained) on its own announcement topic, publishes its
// four state domains on connect, subscribes to its command topics, and
// ticks its uptime counter once per second. System state is republished
// every tick while pinging is enabled; audio transitions run through the
// playback state machine including the auto-stop of finished non-looping
// sounds; a reboot command resets every value to its power-on default and
// replays the announce/state cycle.
//
// Devices are driven from a single goroutine via Run. The emulator exists
// for development and end-to-end testing against a real broker; it is not
// part of the bridge process.
package emulator
