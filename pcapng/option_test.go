// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package pcapng

import (
	"bytes"
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("pcapng options", func() {

	It("Encodes opts", func() {
		bbig := (&Option{Code: uint16(42), Value: []byte("Go")}).
			Bytes(binary.BigEndian)
		Expect(len(bbig)).Should(Equal(2 + 2 + 4))
		Expect(bbig).Should(Equal([]byte{0, 42, 0, 2, byte('G'), byte('o'), 0, 0}))

		blittle := (&Option{Code: uint16(42), Value: []byte("Go")}).
			Bytes(binary.LittleEndian)
		Expect(len(blittle)).Should(Equal(2 + 2 + 4))
		Expect(blittle).Should(Equal([]byte{42, 0, 2, 0, byte('G'), byte('o'), 0, 0}))
	})

	It("Encodes values near and beyond the maximum option length", func() {
		for _, n := range []int{MaxOptionLen - 3, MaxOptionLen - 1, MaxOptionLen, MaxOptionLen + 4466} {
			b := (&Option{Code: OptComment, Value: bytes.Repeat([]byte{'x'}, n)}).
				Bytes(binary.LittleEndian)
			Expect(len(b) % 4).To(BeZero())
			opt, skip := NewOption(b, binary.LittleEndian)
			Expect(opt).NotTo(BeNil())
			Expect(skip).To(Equal(uint(len(b))))
			Expect(len(opt.Value)).To(Equal(min(n, MaxOptionLen)))
		}
	})

	It("Encodes end-of-opts", func() {
		b := (&Option{}).Bytes(binary.BigEndian)
		Expect(len(b)).Should(Equal(4))
		Expect(b).Should(Equal([]byte{0, 0, 0, 0}))
	})

	It("Decodes opts", func() {
		bbig := (&Option{Code: OptComment, Value: []byte("Kuhbernetes")}).
			Bytes(binary.BigEndian)
		opt, skip := NewOption(bbig, binary.BigEndian)
		Expect(opt.Code).Should(Equal(OptComment))
		Expect(opt.String()).Should(Equal("Kuhbernetes"))
		Expect(skip).Should(Equal(uint(16)))
	})

	It("Decodes end-of-opts", func() {
		opt, skip := NewOption([]byte{0, 0, 0, 0}, binary.BigEndian)
		Expect(opt).Should(BeNil())
		Expect(skip).Should(Equal(uint(4)))
	})

	It("Rejects truncated opts", func() {
		opt, skip := NewOption([]byte{1, 0}, binary.LittleEndian)
		Expect(opt).Should(BeNil())
		Expect(skip).Should(BeZero())

		opt, skip = NewOption([]byte{1, 0, 8, 0, 'a'}, binary.LittleEndian)
		Expect(opt).Should(BeNil())
		Expect(skip).Should(BeZero())
	})

	It("Encodes and decodes option lists", func() {
		b := encodeOptions([]*Option{
			{Code: OptComment, Value: []byte("abc")},
			{Code: OptSHBOS, Value: []byte("Linux")},
		}, binary.LittleEndian)
		Expect(b).To(HaveLen(8 + 12 + 4))
		Expect(b[len(b)-4:]).To(Equal([]byte{0, 0, 0, 0}))

		opts := decodeOptions(b, binary.LittleEndian)
		Expect(opts).To(HaveLen(2))
		Expect(opts[0].String()).To(Equal("abc"))
		Expect(opts[1].Code).To(Equal(OptSHBOS))
		Expect(opts[1].String()).To(Equal("Linux"))

		Expect(encodeOptions(nil, binary.LittleEndian)).To(BeEmpty())
	})

})
