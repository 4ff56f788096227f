/*
Package namon captures network traffic on a single host and attributes each
captured packet to the local process owning the packet's flow, that is, the
process holding the TCP or UDP socket the packet belongs to. The attributed
packets are written to a pcapng capture file, with the owning process ID and
the application identity (command line or executable path) recorded as
per-packet comments, so that Wireshark and friends show which application sent
or received which packets.

Capturing never waits for the capture file: captured packets pass through a
fixed-capacity ring buffer into a background file writer. When the file writer
falls behind and the ring buffer runs full, newly captured packets get dropped
(and counted) instead of stalling the capture.

Resolving the owner of a flow requires snapshotting the connection tables of
the operating system, and resolving the application identity of a process
requires querying a process introspection service. As both are costly, their
results are kept in a [ResolutionCache]. Identity queries exceeding the
configured resolution timeout complete in the background, so later packets of
the same flow get their attribution.

Normally, a capture goes on until you stop it, or until an offline packet
source runs dry. See [CaptureStreamer] for how to stop a capture after a given
amount of time.
*/
package namon
