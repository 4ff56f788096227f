// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package api

import (
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("flows and records", func() {

	It("keys flows by their local endpoint only", func() {
		f1 := NewFlow(IPv4, TCP,
			netip.MustParseAddrPort("10.0.0.1:4000"), netip.MustParseAddrPort("192.0.2.1:443"))
		f2 := NewFlow(IPv4, TCP,
			netip.MustParseAddrPort("[::ffff:10.0.0.1]:4000"), netip.MustParseAddrPort("192.0.2.2:80"))
		Expect(f1.Key()).To(Equal(f2.Key()))
		Expect(f2.Local().Addr().Is4()).To(BeTrue())
		Expect(f1.String()).To(Equal("TCP/4 10.0.0.1:4000->192.0.2.1:443"))

		f3 := NewFlow(IPv4, UDP,
			netip.MustParseAddrPort("10.0.0.1:4000"), netip.MustParseAddrPort("192.0.2.1:443"))
		Expect(f3.Key()).NotTo(Equal(f1.Key()))
		Expect(Protocol(1).String()).To(Equal("proto(1)"))
	})

	It("keeps IPv6 addresses of IPv6 flows", func() {
		f := NewFlow(IPv6, UDP,
			netip.MustParseAddrPort("[::ffff:10.0.0.1]:53"), netip.MustParseAddrPort("[2001:db8::1]:53"))
		Expect(f.Local().Addr().Is6()).To(BeTrue())
	})

	DescribeTable("renders and parses process identities",
		func(id ProcessIdentity, text string) {
			Expect(id.String()).To(Equal(text))
			parsed, ok := ParseProcessIdentity(text)
			Expect(ok).To(BeTrue())
			Expect(parsed).To(Equal(id))
		},
		Entry("unknown", ProcessIdentity{Pid: UnknownPid}, "pid=unknown"),
		Entry("no owner", ProcessIdentity{Pid: 0}, "pid=0"),
		Entry("without identity", ProcessIdentity{Pid: 42}, "pid=42"),
		Entry("with identity", ProcessIdentity{Pid: 42, AppName: `/bin/sh -c "echo hi"`},
			`pid=42 app="/bin/sh -c \"echo hi\""`),
	)

	It("rejects malformed process identities", func() {
		for _, text := range []string{"", "pid=", "pid=-5", "pid=x", "pid=1 foo", `pid=1 app="`, "pid=unknown app=\"x\"", "42"} {
			_, ok := ParseProcessIdentity(text)
			Expect(ok).To(BeFalse(), "for %q", text)
		}
	})

	It("limits process identity comments", func() {
		short := ProcessIdentity{Pid: 42, AppName: "/usr/bin/curl"}
		Expect(short.Comment(100)).To(Equal(short.String()))

		app := "/usr/bin/java -cp " + strings.Repeat("ä/lib.jar:", 8000)
		long := ProcessIdentity{Pid: 42, AppName: app}
		for _, limit := range []int{0xffff, 100, 20} {
			c := long.Comment(limit)
			Expect(len(c)).To(BeNumerically("<=", limit))
			Expect(utf8.ValidString(c)).To(BeTrue())
			id, ok := ParseProcessIdentity(c)
			Expect(ok).To(BeTrue(), "comment %q", c)
			Expect(id.Pid).To(Equal(42))
			Expect(app).To(HavePrefix(id.AppName))
		}

		escaped := ProcessIdentity{Pid: 7, AppName: strings.Repeat("\x01", 10000)}
		c := escaped.Comment(1000)
		Expect(len(c)).To(BeNumerically("<=", 1000))
		_, ok := ParseProcessIdentity(c)
		Expect(ok).To(BeTrue())

		Expect(ProcessIdentity{Pid: 7, AppName: "x"}.Comment(5)).To(Equal("pid=7"))
	})

	It("converts timestamps", func() {
		t := time.Date(2023, 4, 1, 12, 0, 0, 123456789, time.UTC)
		rec := PacketRecord{Timestamp: Microseconds(t)}
		Expect(rec.Time().Equal(t.Truncate(time.Microsecond))).To(BeTrue())
		Expect(ProcessIdentity{Pid: 1}.Resolved()).To(BeTrue())
		Expect(ProcessIdentity{}.Resolved()).To(BeFalse())
	})

})
