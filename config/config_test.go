// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package config_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/siemens/namon"
	"github.com/siemens/namon/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func tempDir() string {
	dir, err := os.MkdirTemp("", "namon-config-*")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(os.RemoveAll, dir)
	return dir
}

var _ = Describe("configuration", func() {

	It("defaults", func() {
		cfg, err := config.Parse(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.Default()))
		opts := cfg.CaptureOptions()
		Expect(opts.SnapLen).To(Equal(uint32(namon.DefaultSnapLen)))
		Expect(opts.BufferCapacity).To(Equal(namon.DefaultBufferCapacity))
		Expect(opts.CacheSize).To(Equal(namon.DefaultCacheSize))
		Expect(opts.ResolveTimeout).To(Equal(namon.DefaultResolveTimeout))
	})

	It("loads a configuration file", func() {
		path := filepath.Join(tempDir(), "namon.yaml")
		Expect(os.WriteFile(path, []byte(`capture:
  interface: eth0
  filter: tcp or udp
  no-promiscuous: true
  buffer-capacity: 8192
output:
  path: /var/tmp/namon.pcapng
resolution:
  timeout: 500ms
`), 0644)).To(Succeed())
		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Capture).To(Equal(config.Capture{
			Interface:      "eth0",
			Filter:         "tcp or udp",
			SnapLen:        namon.DefaultSnapLen,
			NoPromiscuous:  true,
			BufferCapacity: 8192,
		}))
		Expect(cfg.Output.Path).To(Equal("/var/tmp/namon.pcapng"))
		Expect(cfg.Resolution).To(Equal(config.Resolution{
			CacheSize: namon.DefaultCacheSize,
			Timeout:   500 * time.Millisecond,
		}))

		opts := cfg.CaptureOptions()
		Expect(opts.Interface).To(Equal("eth0"))
		Expect(opts.Filter).To(Equal("tcp or udp"))
		Expect(opts.AvoidPromiscuousMode).To(BeTrue())
	})

	It("names the replayed file as the source", func() {
		cfg, err := config.Parse([]byte("capture: {file: old.pcap}"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Source()).To(Equal("old.pcap"))
	})

	It("reports missing files", func() {
		_, err := config.Load(filepath.Join(tempDir(), "nope.yaml"))
		Expect(err).To(MatchError(os.ErrNotExist))
	})

	DescribeTable("rejects invalid configurations",
		func(yaml string, msg string) {
			_, err := config.Parse([]byte(yaml))
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("unknown setting", "capture: {interfaces: eth0}", "not found"),
		Entry("malformed", "capture: [", "invalid configuration"),
		Entry("interface and file", "capture: {interface: eth0, file: x.pcap}", "mutually exclusive"),
		Entry("zero snaplen", "capture: {snaplen: 0}", "snaplen"),
		Entry("negative buffer", "capture: {buffer-capacity: -1}", "buffer capacity"),
		Entry("zero cache", "resolution: {cache-size: 0}", "cache size"),
		Entry("bad timeout", "resolution: {timeout: soon}", "invalid configuration"),
	)

})
