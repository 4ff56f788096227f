// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package pcapng

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket/layers"
	"github.com/siemens/namon/api"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Block types written by namon.
const (
	BlockSectionHeader        = uint32(0x0a0d0d0a)
	BlockInterfaceDescription = uint32(0x00000001)
	BlockEnhancedPacket       = uint32(0x00000006)
)

// byteOrderMagic is written in every section header block; it allows readers
// to detect the byte order of the section.
const byteOrderMagic = uint32(0x1a2b3c4d)

// ByteOrder is the fixed byte order of all capture files written by namon:
// little endian, regardless of the host's native byte order.
var ByteOrder = binary.LittleEndian

// TsResolMicroseconds is the if_tsresol option value for timestamps in units
// of 10^-6 seconds. This also is the pcapng default.
const TsResolMicroseconds = 6

const (
	// sessionmarker describes the "magic" signature of the capture session
	// YAML document inside the section header comment.
	sessionmarker = "---\n# capture session information\n"
)

// SessionInfo describes a capture session; it gets recorded in the section
// header and interface description blocks of a capture file.
type SessionInfo struct {
	// Description of the operating system of the capturing host; written as
	// both the section's shb_os and the interface's if_os options.
	OS string `yaml:"-"`
	// Name (and version) of the capturing application.
	Application string `yaml:"-"`
	// Name of the capture interface.
	Interface string `yaml:"interface"`
	// Link-layer type of the capture interface.
	LinkType layers.LinkType `yaml:"-"`
	// Maximum number of octets captured per packet.
	SnapLen uint32 `yaml:"snaplen"`
	// Capture filter expression, if any.
	CaptureFilter string `yaml:"capture-filter,omitempty"`
	// Promiscuous mode disabled?
	NoProm bool `yaml:"no-promiscuous-mode,omitempty"`
	// Capacity of the packet buffer between capture and file writing.
	BufferCapacity int `yaml:"buffer-capacity,omitempty"`
}

// Writer writes a single-section, single-interface pcapng capture stream. The
// section header and interface description blocks get written once when
// creating the Writer; afterwards, only packet blocks are appended.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter returns a new pcapng Writer connected to the specified writer
// (which can be a file, pipe, et cetera), after having written the section
// header block and the interface description block derived from the session
// information.
func NewWriter(w io.Writer, info *SessionInfo) (*Writer, error) {
	if info == nil {
		return nil, errors.New("missing capture session information")
	}
	pw := &Writer{w: w}
	if err := pw.write(sectionHeader(info)); err != nil {
		return nil, fmt.Errorf("cannot write section header block: %w", err)
	}
	if err := pw.write(interfaceDescription(info)); err != nil {
		return nil, fmt.Errorf("cannot write interface description block: %w", err)
	}
	log.Debugf("pcapng section and interface %q headers written", info.Interface)
	return pw, nil
}

// WritePacket appends an enhanced packet block for the specified packet
// record to the capture stream. If the record carries an owner attribution,
// then the attribution gets stored as the packet block's comment.
func (pw *Writer) WritePacket(rec *api.PacketRecord) error {
	if uint32(len(rec.Data)) < rec.CapturedLength {
		return fmt.Errorf("packet data too short: %d octets instead of %d",
			len(rec.Data), rec.CapturedLength)
	}
	var opts []*Option
	if rec.Attributed {
		opts = []*Option{{Code: OptComment, Value: []byte(rec.Owner.Comment(MaxOptionLen))}}
	}
	data := rec.Data[:rec.CapturedLength]
	optb := encodeOptions(opts, ByteOrder)
	blockLen := 4 + 4 + 4 + 4 + 4 + 4 + 4 + pad4(len(data)) + len(optb) + 4
	if cap(pw.buf) < blockLen {
		pw.buf = make([]byte, blockLen)
	}
	b := pw.buf[:blockLen]
	ByteOrder.PutUint32(b[0:4], BlockEnhancedPacket)
	ByteOrder.PutUint32(b[4:8], uint32(blockLen))
	ByteOrder.PutUint32(b[8:12], 0) // interface ID
	ByteOrder.PutUint32(b[12:16], uint32(rec.Timestamp>>32))
	ByteOrder.PutUint32(b[16:20], uint32(rec.Timestamp))
	ByteOrder.PutUint32(b[20:24], rec.CapturedLength)
	ByteOrder.PutUint32(b[24:28], rec.OriginalLength)
	n := copy(b[28:], data)
	// Zero the padding, as the scratch buffer might still contain octets of an
	// earlier packet.
	for idx := 28 + n; idx < 28+pad4(len(data)); idx++ {
		b[idx] = 0
	}
	copy(b[28+pad4(len(data)):], optb)
	ByteOrder.PutUint32(b[blockLen-4:], uint32(blockLen))
	return pw.write(b)
}

// write writes a complete block in a single write operation.
func (pw *Writer) write(b []byte) error {
	_, err := pw.w.Write(b)
	return err
}

// sectionHeader returns the section header block for the specified capture
// session, with unknown section length.
func sectionHeader(info *SessionInfo) []byte {
	comment := sessionmarker
	y, err := yaml.Marshal(info)
	if err == nil {
		comment += string(y)
	} else {
		log.Errorf("cannot create capture session YAML meta data: %s", err.Error())
	}
	opts := []*Option{{Code: OptComment, Value: []byte(comment)}}
	if info.OS != "" {
		opts = append(opts, &Option{Code: OptSHBOS, Value: []byte(info.OS)})
	}
	if info.Application != "" {
		opts = append(opts, &Option{Code: OptSHBUserAppl, Value: []byte(info.Application)})
	}
	shbOpts := encodeOptions(opts, ByteOrder)
	// ...but only now we can calculate the total length of the SHB.
	shbLen := 4 + 4 + 4 + 2 + 2 + 8 + len(shbOpts) + 4
	shb := make([]byte, shbLen)
	ByteOrder.PutUint32(shb[0:4], BlockSectionHeader)
	ByteOrder.PutUint32(shb[4:8], uint32(shbLen))
	ByteOrder.PutUint32(shb[8:12], byteOrderMagic)
	ByteOrder.PutUint16(shb[12:14], 1) // major
	ByteOrder.PutUint16(shb[14:16], 0) // minor
	ByteOrder.PutUint64(shb[16:24], ^uint64(0))
	copy(shb[24:], shbOpts)
	ByteOrder.PutUint32(shb[shbLen-4:], uint32(shbLen))
	return shb
}

// interfaceDescription returns the interface description block for the
// capture interface of the specified session.
func interfaceDescription(info *SessionInfo) []byte {
	opts := []*Option{}
	if info.Interface != "" {
		opts = append(opts, &Option{Code: OptIfName, Value: []byte(info.Interface)})
	}
	opts = append(opts, &Option{Code: OptIfTsResol, Value: []byte{TsResolMicroseconds}})
	if info.OS != "" {
		opts = append(opts, &Option{Code: OptIfOS, Value: []byte(info.OS)})
	}
	idbOpts := encodeOptions(opts, ByteOrder)
	idbLen := 4 + 4 + 2 + 2 + 4 + len(idbOpts) + 4
	idb := make([]byte, idbLen)
	ByteOrder.PutUint32(idb[0:4], BlockInterfaceDescription)
	ByteOrder.PutUint32(idb[4:8], uint32(idbLen))
	ByteOrder.PutUint16(idb[8:10], uint16(info.LinkType))
	ByteOrder.PutUint16(idb[10:12], 0) // reserved
	ByteOrder.PutUint32(idb[12:16], info.SnapLen)
	copy(idb[16:], idbOpts)
	ByteOrder.PutUint32(idb[idbLen-4:], uint32(idbLen))
	return idb
}

// pad4 returns n rounded up to the next multiple of 4.
func pad4(n int) int {
	return (n + 3) &^ 3
}
