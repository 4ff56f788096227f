/*
Package source provides the packet sources of the namon CLI as plugins: live
capture from a network interface ("--interface"), and replaying a pcap or
pcapng file ("--read"). The flags are mutually exclusive and override the
capture source in the configuration file.
*/
package source
