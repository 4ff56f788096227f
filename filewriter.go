// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package namon

import (
	"fmt"
	"sync/atomic"

	"github.com/siemens/namon/api"
	"github.com/siemens/namon/pcapng"
	"github.com/siemens/namon/ringbuf"
	log "github.com/sirupsen/logrus"
)

// PacketWriter writes packet records to a capture file.
type PacketWriter interface {
	WritePacket(rec *api.PacketRecord) error
}

var _ PacketWriter = (*pcapng.Writer)(nil)

// FileWriter drains packet records from a ring buffer in the background and
// writes them to a capture file, in the order they were pushed into the ring
// buffer.
type FileWriter struct {
	done    chan struct{}
	err     error
	written atomic.Uint64
}

// StartFileWriter starts draining the specified ring buffer into the packet
// writer pw, which must already have written any file headers. The file
// writer terminates after the ring buffer has been closed and all records
// pushed before closing have been written.
//
// Failing to write a record is fatal: the file writer then closes the ring
// buffer, so that further pushes get rejected, and terminates with the write
// error.
func StartFileWriter(ring *ringbuf.Ring[api.PacketRecord], pw PacketWriter) *FileWriter {
	fw := &FileWriter{
		done: make(chan struct{}),
	}
	go func() {
		defer close(fw.done)
		for ring.Wait() {
			for {
				rec, ok := ring.Pop()
				if !ok {
					break
				}
				if err := pw.WritePacket(&rec); err != nil {
					fw.err = fmt.Errorf("cannot write packet block: %w", err)
					log.Errorf("capture file writer failed: %s", err.Error())
					ring.Close()
					return
				}
				fw.written.Add(1)
			}
		}
		log.Debugf("capture file writer drained, %d packets written", fw.written.Load())
	}()
	return fw
}

// Done returns a channel that gets closed when the file writer has
// terminated.
func (fw *FileWriter) Done() <-chan struct{} {
	return fw.done
}

// Wait for the file writer to terminate and return the write error that
// terminated it, if any.
func (fw *FileWriter) Wait() error {
	<-fw.done
	return fw.err
}

// Written returns the number of packet records written so far.
func (fw *FileWriter) Written() uint64 {
	return fw.written.Load()
}
