// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package pcapng

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// maxBlockLen limits the length of blocks accepted when scanning, so that
// corrupt length fields cannot trigger huge allocations.
const maxBlockLen = 16 * 1024 * 1024

var (
	// markerstart matches the first capture session YAML document.
	markerstart = regexp.MustCompile(`(?s)(^|\n)` + sessionmarker)
	// markerend matches an optional YAML end/next document marker.
	markerend = regexp.MustCompile(`(?s)\n---($|\n)`)
)

// Block is a single raw pcapng block, with its block type and body. The body
// excludes the leading block type and length fields, as well as the trailing
// length field.
type Block struct {
	Type   uint32
	Body   []byte
	Endian binary.ByteOrder
}

// Scanner reads a pcapng stream block by block. It handles sections in either
// byte order.
type Scanner struct {
	r      io.Reader
	endian binary.ByteOrder
	block  Block
	err    error
}

// NewScanner returns a new Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: r}
}

// Next advances to the next block, returning false at the end of the stream
// or when encountering an error. Use Err to distinguish between both cases.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(s.r, hdr); err != nil {
		if err != io.EOF {
			s.err = fmt.Errorf("truncated block header: %w", err)
		}
		return false
	}
	body := []byte{}
	if bytes.Equal(hdr[0:4], []byte{0x0a, 0x0d, 0x0d, 0x0a}) {
		// This is the first time that we received enough data to find out
		// how long the SHB is going to be: the SHB begins with its block type,
		// followed by the block total length, and -- most importantly -- the
		// "byte-order magic" ... which tells us the endianness of values, such
		// as the block length.
		magic := make([]byte, 4)
		if _, err := io.ReadFull(s.r, magic); err != nil {
			s.err = fmt.Errorf("truncated section header block: %w", err)
			return false
		}
		if bytes.Equal(magic, []byte{0x1a, 0x2b, 0x3c, 0x4d}) {
			s.endian = binary.BigEndian
			log.Debug("section in packet capture stream is big endian")
		} else {
			s.endian = binary.LittleEndian
			log.Debug("section in packet capture stream is little endian")
		}
		body = magic
	} else if s.endian == nil {
		s.err = errors.New("invalid packet capture stream; must begin with section header block")
		return false
	}
	blockLen := s.endian.Uint32(hdr[4:8])
	if blockLen < uint32(8+len(body)+4) || blockLen&0x3 != 0 || blockLen > maxBlockLen {
		s.err = fmt.Errorf("invalid block length %d", blockLen)
		return false
	}
	rest := make([]byte, int(blockLen)-8-len(body))
	if _, err := io.ReadFull(s.r, rest); err != nil {
		s.err = fmt.Errorf("truncated block: %w", err)
		return false
	}
	if trailer := s.endian.Uint32(rest[len(rest)-4:]); trailer != blockLen {
		s.err = fmt.Errorf("mismatching block lengths %d and %d", blockLen, trailer)
		return false
	}
	s.block = Block{
		Type:   s.endian.Uint32(hdr[0:4]),
		Body:   append(body, rest[:len(rest)-4]...),
		Endian: s.endian,
	}
	return true
}

// Block returns the most recent block read by Next.
func (s *Scanner) Block() Block {
	return s.block
}

// Err returns the first error encountered while scanning, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Section describes a decoded section header block.
type Section struct {
	Major, Minor uint16
	OS           string
	Application  string
	Comment      string
	// Capture session information, if present in the comment.
	Session *SessionInfo
}

// Interface describes a decoded interface description block.
type Interface struct {
	LinkType layers.LinkType
	SnapLen  uint32
	Name     string
	OS       string
	TsResol  uint8
}

// Packet describes a decoded enhanced packet block.
type Packet struct {
	InterfaceID    uint32
	Timestamp      uint64
	CapturedLength uint32
	OriginalLength uint32
	Data           []byte
	Comment        string
}

// DecodeSection decodes a section header block.
func DecodeSection(b Block) (*Section, error) {
	if b.Type != BlockSectionHeader || len(b.Body) < 16 {
		return nil, errors.New("not a section header block")
	}
	s := &Section{
		Major: b.Endian.Uint16(b.Body[4:6]),
		Minor: b.Endian.Uint16(b.Body[6:8]),
	}
	for _, opt := range decodeOptions(b.Body[16:], b.Endian) {
		switch opt.Code {
		case OptComment:
			if s.Comment == "" {
				s.Comment = opt.String()
			}
		case OptSHBOS:
			s.OS = opt.String()
		case OptSHBUserAppl:
			s.Application = opt.String()
		}
	}
	s.Session = sessionFromComment(s.Comment)
	if s.Session != nil {
		s.Session.OS = s.OS
		s.Session.Application = s.Application
	}
	return s, nil
}

// sessionFromComment returns the capture session information embedded in the
// specified section comment, or nil.
func sessionFromComment(comment string) *SessionInfo {
	start := markerstart.FindStringIndex(comment)
	if len(start) != 2 {
		return nil
	}
	doc := comment[start[1]:]
	if end := markerend.FindStringIndex(doc); len(end) == 2 {
		doc = doc[:end[0]+1]
	}
	var info SessionInfo
	if err := yaml.Unmarshal([]byte(doc), &info); err != nil {
		log.Debugf("invalid capture session YAML meta data: %s", err.Error())
		return nil
	}
	return &info
}

// DecodeInterface decodes an interface description block.
func DecodeInterface(b Block) (*Interface, error) {
	if b.Type != BlockInterfaceDescription || len(b.Body) < 8 {
		return nil, errors.New("not an interface description block")
	}
	ifc := &Interface{
		LinkType: layers.LinkType(b.Endian.Uint16(b.Body[0:2])),
		SnapLen:  b.Endian.Uint32(b.Body[4:8]),
		TsResol:  TsResolMicroseconds,
	}
	for _, opt := range decodeOptions(b.Body[8:], b.Endian) {
		switch opt.Code {
		case OptIfName:
			ifc.Name = opt.String()
		case OptIfOS:
			ifc.OS = opt.String()
		case OptIfTsResol:
			if len(opt.Value) == 1 {
				ifc.TsResol = opt.Value[0]
			}
		}
	}
	return ifc, nil
}

// DecodePacket decodes an enhanced packet block. The timestamp is returned in
// the units of the interface's timestamp resolution.
func DecodePacket(b Block) (*Packet, error) {
	if b.Type != BlockEnhancedPacket || len(b.Body) < 20 {
		return nil, errors.New("not an enhanced packet block")
	}
	p := &Packet{
		InterfaceID: b.Endian.Uint32(b.Body[0:4]),
		Timestamp: uint64(b.Endian.Uint32(b.Body[4:8]))<<32 |
			uint64(b.Endian.Uint32(b.Body[8:12])),
		CapturedLength: b.Endian.Uint32(b.Body[12:16]),
		OriginalLength: b.Endian.Uint32(b.Body[16:20]),
	}
	dataEnd := 20 + pad4(int(p.CapturedLength))
	if p.CapturedLength > uint32(len(b.Body)) || dataEnd > len(b.Body) {
		return nil, fmt.Errorf("captured length %d exceeds block", p.CapturedLength)
	}
	p.Data = b.Body[20 : 20+p.CapturedLength]
	for _, opt := range decodeOptions(b.Body[dataEnd:], b.Endian) {
		if opt.Code == OptComment && p.Comment == "" {
			p.Comment = opt.String()
		}
	}
	return p, nil
}
