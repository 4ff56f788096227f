// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package namon

import (
	"net/netip"
	"time"

	"github.com/siemens/namon/api"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func flowKey(local string) api.FlowKey {
	return api.FlowKey{
		IPVersion: api.IPv4,
		Protocol:  api.TCP,
		Local:     netip.MustParseAddrPort(local),
	}
}

var _ = Describe("resolution cache", func() {

	It("caches owners, including no owner", func() {
		rc := NewResolutionCache(0, nil)
		_, ok := rc.LookupPid(flowKey("10.0.0.1:4000"))
		Expect(ok).To(BeFalse())

		rc.StorePid(flowKey("10.0.0.1:4000"), 100)
		rc.StorePid(flowKey("10.0.0.1:4001"), 0)
		pid, ok := rc.LookupPid(flowKey("10.0.0.1:4000"))
		Expect(ok).To(BeTrue())
		Expect(pid).To(Equal(100))
		pid, ok = rc.LookupPid(flowKey("10.0.0.1:4001"))
		Expect(ok).To(BeTrue())
		Expect(pid).To(BeZero())

		udp := flowKey("10.0.0.1:4000")
		udp.Protocol = api.UDP
		_, ok = rc.LookupPid(udp)
		Expect(ok).To(BeFalse())
	})

	It("caches identities, including empty identities", func() {
		rc := NewResolutionCache(0, nil)
		rc.StoreApp(100, "/usr/bin/curl")
		rc.StoreApp(200, "")
		app, ok := rc.LookupApp(100)
		Expect(ok).To(BeTrue())
		Expect(app).To(Equal("/usr/bin/curl"))
		app, ok = rc.LookupApp(200)
		Expect(ok).To(BeTrue())
		Expect(app).To(BeEmpty())
		_, ok = rc.LookupApp(300)
		Expect(ok).To(BeFalse())

		flows, procs := rc.Len()
		Expect(flows).To(BeZero())
		Expect(procs).To(Equal(2))
		rc.Clear()
		_, procs = rc.Len()
		Expect(procs).To(BeZero())
	})

	It("evicts the least recently used entries", func() {
		rc := NewResolutionCache(2, nil)
		rc.StorePid(flowKey("10.0.0.1:1"), 1)
		rc.StorePid(flowKey("10.0.0.1:2"), 2)
		_, ok := rc.LookupPid(flowKey("10.0.0.1:1"))
		Expect(ok).To(BeTrue())
		rc.StorePid(flowKey("10.0.0.1:3"), 3)

		_, ok = rc.LookupPid(flowKey("10.0.0.1:2"))
		Expect(ok).To(BeFalse())
		_, ok = rc.LookupPid(flowKey("10.0.0.1:1"))
		Expect(ok).To(BeTrue())
		_, ok = rc.LookupPid(flowKey("10.0.0.1:3"))
		Expect(ok).To(BeTrue())
		flows, _ := rc.Len()
		Expect(flows).To(Equal(2))
	})

	It("invalidates entries of recycled and terminated processes", func() {
		starts := &fakeStarts{starts: map[int]uint64{100: 1000, 200: 2000}}
		rc := NewResolutionCache(0, starts)
		rc.recheck = 0
		rc.StorePid(flowKey("10.0.0.1:4000"), 100)
		rc.StoreApp(100, "/usr/bin/curl")
		rc.StoreApp(200, "/usr/bin/wget")
		rc.StoreApp(300, "/gone")

		_, ok := rc.LookupApp(100)
		Expect(ok).To(BeTrue())

		starts.set(100, 1001)
		_, ok = rc.LookupPid(flowKey("10.0.0.1:4000"))
		Expect(ok).To(BeFalse())
		_, ok = rc.LookupApp(100)
		Expect(ok).To(BeFalse())
		_, procs := rc.Len()
		Expect(procs).To(Equal(2))

		_, ok = rc.LookupApp(200)
		Expect(ok).To(BeTrue())
		// Start time unknown when stored, so never invalidated.
		_, ok = rc.LookupApp(300)
		Expect(ok).To(BeTrue())
	})

	It("checks start times only once per recheck interval", func() {
		starts := &fakeStarts{starts: map[int]uint64{100: 1000}}
		rc := NewResolutionCache(0, starts)
		rc.recheck = 50 * time.Millisecond
		rc.StorePid(flowKey("10.0.0.1:4000"), 100)
		rc.StoreApp(100, "/usr/bin/curl")
		Expect(starts.calls.Load()).To(Equal(int32(2)))

		for i := 0; i < 100; i++ {
			_, ok := rc.LookupPid(flowKey("10.0.0.1:4000"))
			Expect(ok).To(BeTrue())
			_, ok = rc.LookupApp(100)
			Expect(ok).To(BeTrue())
		}
		Expect(starts.calls.Load()).To(Equal(int32(2)))

		starts.set(100, 1001)
		Eventually(func() bool {
			_, ok := rc.LookupApp(100)
			return ok
		}).Within(time.Second).ProbeEvery(10 * time.Millisecond).Should(BeFalse())
		_, ok := rc.LookupPid(flowKey("10.0.0.1:4000"))
		Expect(ok).To(BeFalse())
	})

})
