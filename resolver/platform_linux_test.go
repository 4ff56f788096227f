// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

//go:build linux

package resolver

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("procfs", func() {

	It("parses process start times", func() {
		st, err := parseStartTime([]byte(
			"1234 (evil) name) S 1 1234 1234 0 -1 4194560 1000 0 0 0 10 5 0 0 20 0 1 0 987654 12345678 100"))
		Expect(err).NotTo(HaveOccurred())
		Expect(st).To(Equal(uint64(987654)))

		_, err = parseStartTime([]byte("1234 (short) S 1 2 3"))
		Expect(err).To(HaveOccurred())
		_, err = parseStartTime([]byte("garbage"))
		Expect(err).To(HaveOccurred())
	})

	It("returns our own start time", func() {
		st, err := PlatformStartTimer().StartTime(os.Getpid())
		Expect(err).NotTo(HaveOccurred())
		Expect(st).NotTo(BeZero())
		_, err = PlatformStartTimer().StartTime(-1)
		Expect(err).To(HaveOccurred())
	})

	It("queries process identities", func() {
		s := PlatformSession()
		Expect(s.Open(context.Background())).To(Succeed())
		defer s.Close()

		app, err := s.Identity(context.Background(), os.Getpid())
		Expect(err).NotTo(HaveOccurred())
		Expect(app).To(ContainSubstring(os.Args[0]))

		app, err = s.Identity(context.Background(), 0x7ffffff0)
		Expect(err).NotTo(HaveOccurred())
		Expect(app).To(BeEmpty())
	})

	It("refuses queries on closed sessions", func() {
		s := PlatformSession()
		_, err := s.Identity(context.Background(), os.Getpid())
		Expect(err).To(MatchError(ErrSessionClosed))
	})

	It("finds socket owners via their file descriptors", func() {
		root, err := os.MkdirTemp("", "namon-procfs-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)
		for _, fd := range []struct {
			pid, fd, link string
		}{
			{"123", "0", "/dev/null"},
			{"123", "3", "socket:[4711]"},
			{"456", "5", "socket:[4711]"},
			{"456", "6", "socket:[815]"},
			{"self", "1", "socket:[999]"},
		} {
			fddir := filepath.Join(root, fd.pid, "fd")
			Expect(os.MkdirAll(fddir, 0755)).To(Succeed())
			Expect(os.Symlink(fd.link, filepath.Join(fddir, fd.fd))).To(Succeed())
		}

		Expect(socketOwner(root, 4711)).To(Equal(123))
		Expect(socketOwner(root, 815)).To(Equal(456))
		Expect(socketOwner(root, 999)).To(BeZero())
		Expect(socketOwner(root, 0)).To(BeZero())
		Expect(socketOwners(root)).To(Equal(map[uint64]int{4711: 123, 815: 456}))
	})

	It("rejects non-procfs roots", func() {
		s := &procSession{root: os.TempDir()}
		Expect(s.Open(context.Background())).To(MatchError(ErrSessionFailure))
	})

})
