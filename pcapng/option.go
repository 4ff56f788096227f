// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package pcapng

import (
	"encoding/binary"
)

// Option represents a pcapng option, consisting of a Code uniquely identifying
// the type of option, as well as its (binary) value in form of an octet string.
type Option struct {
	Code  uint16 // Option Code
	Value []byte // Value
}

const (
	// OptEndofOpt signals the end of options.
	OptEndofOpt = uint16(0)
	// OptComment contains a comment in form of an UTF-8 string.
	OptComment = uint16(1)
	// OptSHBHardware contains the description of the hardware used to create this
	// section, in form of an UTF-8 string.
	OptSHBHardware = uint16(2)
	// OptSHBOS contains the name of the operating system used to create this
	// section, in form of an UTF-8 string.
	OptSHBOS = uint16(3)
	// OptSHBUserAppl contains the name of the application used to create this
	// section, in form of an UTF-8 string.
	OptSHBUserAppl = uint16(4)
	// OptIfName contains the name of the capture interface.
	OptIfName = uint16(2)
	// OptIfTsResol contains the timestamp resolution of an interface as a single
	// octet.
	OptIfTsResol = uint16(9)
	// OptIfOS contains the name of the operating system of the machine on which
	// the interface was installed.
	OptIfOS = uint16(12)
)

// NewOption returns a new pcapng Option read from the buffer using the
// given endianness, as well as the number of octets to skip over to arrive
// at the next option. If the last option is reached, then nil is returned,
// together with the amount of octets to skip past the end-of-options mark.
// If the buffer is too short to contain the option, nil is returned together
// with a skip of 0.
func NewOption(buff []byte, endian binary.ByteOrder) (opt *Option, skip uint) {
	if len(buff) < 4 {
		return nil, 0
	}
	code := endian.Uint16(buff)
	length := endian.Uint16(buff[2:4])
	if len(buff) < 4+int(length) {
		return nil, 0
	}
	// Calculate overall length of this option, and make sure to align it to
	// the next 32bit boundary.
	skip = uint(2+2) + uint(length)
	if skip&0x3 != 0 {
		skip += 4 - (skip & 0x3)
	}
	// If it's not the end-of-options marker, then return an Option object,
	// otherwise simply return nil. The amount of octets to skip is already
	// calculated correctly for all cases.
	if code != OptEndofOpt || length != 0 {
		opt = &Option{Code: code, Value: buff[4 : 4+length]}
	}
	return
}

// String returns an option's value as a string instead of octets, assuming
// UTF-8 encoding.
func (o *Option) String() string {
	return string(o.Value)
}

// MaxOptionLen is the maximum length of an option value in octets.
const MaxOptionLen = 0xffff

// Bytes returns the octets encoding the option, using the specified
// endianness. Values longer than MaxOptionLen get truncated.
func (o *Option) Bytes(endian binary.ByteOrder) (b []byte) {
	if o == nil {
		return []byte{0, 0, 0, 0}
	}
	value := o.Value
	if len(value) > MaxOptionLen {
		value = value[:MaxOptionLen]
	}
	length := len(value)
	by := make([]byte, 2+2+pad4(length))
	endian.PutUint16(by[0:2], o.Code)
	endian.PutUint16(by[2:4], uint16(length))
	copy(by[4:], value)
	return by
}

// encodeOptions returns the octets of the specified options, terminated by an
// end-of-options marker. If there are no options at all, then no octets are
// returned, as the end-of-options marker is optional in this case.
func encodeOptions(opts []*Option, endian binary.ByteOrder) []byte {
	if len(opts) == 0 {
		return nil
	}
	b := []byte{}
	for _, opt := range opts {
		b = append(b, opt.Bytes(endian)...)
	}
	return append(b, (*Option)(nil).Bytes(endian)...)
}

// decodeOptions decodes the list of options found in buff, stopping at the
// end-of-options marker or the end of the buffer, whatever comes first.
func decodeOptions(buff []byte, endian binary.ByteOrder) []*Option {
	opts := []*Option{}
	for len(buff) > 0 {
		opt, skip := NewOption(buff, endian)
		if opt == nil || skip > uint(len(buff)) {
			break
		}
		opts = append(opts, opt)
		buff = buff[skip:]
	}
	return opts
}
