// Package tcpchan carries transactions between nodes over TCP.
//
// A Sender is the observer end of a channel: every transaction it receives
// is written to the peer as one msgpack frame. A Receiver is the observable
// end: it listens on an address and produces every transaction that
// arrives on any accepted connection.
//
// Several logical nodes may run at one address. Listeners are therefore
// shared per address: each Listen call gets its own Receiver, all receivers
// on an address see every inbound transaction, and AcceptOnly narrows a
// receiver to the relations its node consumes. The socket is closed when the
// last receiver on it closes.
package tcpchan
