/*
Package capture provides namon packet sources based on libpcap (or Npcap on
Windows): live captures from network interfaces, as well as replaying pcap and
pcapng files.
*/
package capture
