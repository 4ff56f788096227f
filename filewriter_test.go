// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package namon

import (
	"errors"
	"sync"
	"time"

	"github.com/siemens/namon/api"
	"github.com/siemens/namon/ringbuf"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingWriter records the timestamps of the packet records written,
// optionally failing after a number of records.
type recordingWriter struct {
	m       sync.Mutex
	written []uint64
	failAt  int
}

func (w *recordingWriter) WritePacket(rec *api.PacketRecord) error {
	w.m.Lock()
	defer w.m.Unlock()
	if w.failAt > 0 && len(w.written) == w.failAt {
		return errors.New("disk full")
	}
	w.written = append(w.written, rec.Timestamp)
	return nil
}

func (w *recordingWriter) Written() []uint64 {
	w.m.Lock()
	defer w.m.Unlock()
	return append([]uint64(nil), w.written...)
}

var _ = Describe("file writer", func() {

	It("writes records in push order and drains on close", func() {
		ring := ringbuf.New[api.PacketRecord](100)
		pw := &recordingWriter{}
		fw := StartFileWriter(ring, pw)
		for ts := uint64(1); ts <= 50; ts++ {
			Expect(ring.Push(api.PacketRecord{Timestamp: ts})).To(BeTrue())
		}
		Eventually(fw.Written).Within(time.Second).Should(Equal(uint64(50)))
		Consistently(fw.Done()).Within(50 * time.Millisecond).ShouldNot(BeClosed())

		for ts := uint64(51); ts <= 100; ts++ {
			Expect(ring.Push(api.PacketRecord{Timestamp: ts})).To(BeTrue())
		}
		ring.Close()
		Expect(fw.Wait()).To(Succeed())
		Expect(fw.Written()).To(Equal(uint64(100)))
		written := pw.Written()
		Expect(written).To(HaveLen(100))
		for idx, ts := range written {
			Expect(ts).To(Equal(uint64(idx + 1)))
		}
	})

	It("terminates on write errors", func() {
		ring := ringbuf.New[api.PacketRecord](10)
		pw := &recordingWriter{failAt: 3}
		fw := StartFileWriter(ring, pw)
		for ts := uint64(1); ts <= 5; ts++ {
			ring.Push(api.PacketRecord{Timestamp: ts})
		}
		Eventually(fw.Done()).Within(time.Second).Should(BeClosed())
		Expect(fw.Wait()).To(MatchError(ContainSubstring("disk full")))
		Expect(fw.Written()).To(Equal(uint64(3)))
		Expect(ring.Push(api.PacketRecord{Timestamp: 6})).To(BeFalse())
	})

})
