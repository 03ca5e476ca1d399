package transport_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/agi/transport"
)

var _ = Describe("Stream", func() {
	ctx := context.Background()

	It("reads lines without their terminators", func() {
		s := transport.NewStream(strings.NewReader("agi_channel: SIP/1\r\n\n200 result=0\n"), io.Discard)

		Expect(s.ReadLine(ctx)).To(Equal("agi_channel: SIP/1"))
		Expect(s.ReadLine(ctx)).To(Equal(""))
		Expect(s.ReadLine(ctx)).To(Equal("200 result=0"))

		_, err := s.ReadLine(ctx)
		Expect(err).To(MatchError(io.EOF))
	})

	It("reads lines longer than the read buffer", func() {
		long := strings.Repeat("x", 10000)
		s := transport.NewStream(strings.NewReader(long+"\n"), io.Discard)

		Expect(s.ReadLine(ctx)).To(Equal(long))
	})

	It("writes and flushes every line", func() {
		out := &bytes.Buffer{}
		s := transport.NewStream(strings.NewReader(""), out)

		Expect(s.WriteLine(ctx, "ANSWER")).To(Succeed())
		Expect(out.String()).To(Equal("ANSWER\n"))

		Expect(s.WriteLine(ctx, `SAY TIME 1700000000 ""`)).To(Succeed())
		Expect(out.String()).To(Equal("ANSWER\nSAY TIME 1700000000 \"\"\n"))
	})

	It("does nothing once the context is done", func() {
		out := &bytes.Buffer{}
		s := transport.NewStream(strings.NewReader("200 result=0\n"), out)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		Expect(s.WriteLine(cancelled, "ANSWER")).To(MatchError(context.Canceled))
		_, err := s.ReadLine(cancelled)
		Expect(err).To(MatchError(context.Canceled))
		Expect(out.Len()).To(Equal(0))
	})

	It("applies context deadlines to connections", func() {
		local, remote := net.Pipe()
		defer local.Close()
		defer remote.Close()

		s := transport.NewStream(local, local)

		timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := s.ReadLine(timeout)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("interrupts a blocked read when the context is cancelled", func() {
		local, remote := net.Pipe()
		defer local.Close()
		defer remote.Close()

		s := transport.NewStream(local, local)

		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(20*time.Millisecond, cancel)

		_, err := s.ReadLine(cctx)
		Expect(err).To(MatchError(context.Canceled))

		go remote.Write([]byte("200 result=0\n"))

		line, err := s.ReadLine(ctx)
		Expect(err).To(Succeed())
		Expect(line).To(Equal("200 result=0"))
	})
})
