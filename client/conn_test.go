package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gstruct"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/luma/agi/client"
	"github.com/luma/agi/protocol"
	"github.com/luma/agi/transport"
)

var _ = Describe("Conn", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("over a blocking stream", func() {
		var (
			out  *bytes.Buffer
			conn *client.Conn
		)

		newConn := func(input string) {
			out = &bytes.Buffer{}
			conn = client.NewConn(transport.NewStream(strings.NewReader(input), out), client.Options{})
		}

		It("sends a command and parses its reply", func() {
			newConn("200 result=1 (speech) endpos=1234\n")

			resp, err := conn.Send(ctx, "stream file", "welcome", "#")
			Expect(err).To(Succeed())
			Expect(out.String()).To(Equal("STREAM FILE welcome #\n"))

			Expect(resp.Success()).To(BeTrue())
			Expect(*resp.Result).To(Equal(1))
			Expect(*resp.Note).To(Equal("speech"))
			Expect(*resp.EndPos).To(Equal(1234))
		})

		It("writes absent arguments as empty quotes", func() {
			newConn("200 result=1\n")

			_, err := conn.Send(ctx, "SET VARIABLE", "", nil)
			Expect(err).To(Succeed())
			Expect(out.String()).To(Equal("SET VARIABLE \"\" \"\"\n"))
		})

		It("returns unparsable replies without an error", func() {
			newConn("520-Invalid command syntax.  Proper usage follows:\n")

			resp, err := conn.Send(ctx, "GET DATA")
			Expect(err).To(Succeed())
			Expect(resp.Parsed()).To(BeFalse())
			Expect(resp.Raw).To(Equal("520-Invalid command syntax.  Proper usage follows:"))
			Expect(errors.Is(resp.ErrorOrNil(), protocol.ErrUnparsedResponse)).To(BeTrue())
		})

		It("answers each command with the next line", func() {
			newConn("200 result=0\n200 result=49\n")

			first, err := conn.Exec(ctx, protocol.Answer)
			Expect(err).To(Succeed())
			Expect(*first.Result).To(Equal(0))

			second, err := conn.Exec(ctx, protocol.WaitForDigit, 5000)
			Expect(err).To(Succeed())
			digit, ok := second.Digit()
			Expect(ok).To(BeTrue())
			Expect(digit).To(Equal('1'))

			Expect(out.String()).To(Equal("ANSWER\nWAIT FOR DIGIT 5000\n"))
		})

		It("breaks when the remote end hangs up", func() {
			newConn("")

			_, err := conn.Exec(ctx, protocol.Answer)
			Expect(errors.Is(err, client.ErrChannelFailure)).To(BeTrue())
			Expect(errors.Is(err, io.EOF)).To(BeTrue())

			var chErr *client.ChannelError
			Expect(errors.As(err, &chErr)).To(BeTrue())
			Expect(chErr).To(PointTo(MatchFields(IgnoreExtras, Fields{
				"Op":      Equal("read"),
				"Command": Equal("ANSWER"),
			})))

			out.Reset()

			_, again := conn.Exec(ctx, protocol.Hangup)
			Expect(again).To(BeIdenticalTo(err))
			Expect(out.Len()).To(BeZero())
		})
	})

	It("rejects a second command while one is in flight", func() {
		stream := newChanStream()
		conn := client.NewConn(stream, client.Options{})

		replied := make(chan error, 1)
		go func() {
			_, err := conn.Exec(ctx, protocol.Answer)
			replied <- err
		}()

		Eventually(stream.Written).Should(HaveLen(1))

		_, err := conn.Exec(ctx, protocol.Hangup)
		Expect(err).To(MatchError(client.ErrCommandInFlight))

		stream.replies <- "200 result=0"
		Eventually(replied).Should(Receive(BeNil()))
		Expect(stream.Written()).To(Equal([]string{"ANSWER"}))
	})

	It("breaks when a command times out", func() {
		stream := newChanStream()
		conn := client.NewConn(stream, client.Options{})

		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := conn.Exec(tctx, protocol.WaitForDigit, -1)
		Expect(errors.Is(err, client.ErrChannelFailure)).To(BeTrue())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())

		// The late reply must not be taken for the answer to a new command
		stream.replies <- "200 result=50"

		_, err = conn.Exec(ctx, protocol.Noop)
		Expect(errors.Is(err, client.ErrChannelFailure)).To(BeTrue())
		Expect(stream.Written()).To(Equal([]string{"WAIT FOR DIGIT -1"}))
	})

	It("checks argument counts before writing", func() {
		stream := newChanStream()
		conn := client.NewConn(stream, client.Options{})

		_, err := conn.Exec(ctx, protocol.SetVariable, "foo")
		Expect(errors.Is(err, protocol.ErrInvalidArguments)).To(BeTrue())
		Expect(stream.Written()).To(BeEmpty())

		stream.replies <- "200 result=1"
		_, err = conn.Exec(ctx, protocol.SetVariable, "foo", "bar")
		Expect(err).To(Succeed())
	})

	It("traces commands and replies when asked to", func() {
		core, logs := observer.New(zapcore.DebugLevel)

		stream := newChanStream("200 result=0")
		conn := client.NewConn(stream, client.Options{Trace: true, Log: zap.New(core)})

		_, err := conn.Exec(ctx, protocol.Answer)
		Expect(err).To(Succeed())

		Expect(logs.FilterMessage(">> ANSWER").Len()).To(Equal(1))
		Expect(logs.FilterMessage("<< 200 result=0").Len()).To(Equal(1))
	})

	It("doesn't trace by default", func() {
		core, logs := observer.New(zapcore.DebugLevel)

		stream := newChanStream("200 result=0")
		conn := client.NewConn(stream, client.Options{Log: zap.New(core)})

		_, err := conn.Exec(ctx, protocol.Answer)
		Expect(err).To(Succeed())
		Expect(logs.Len()).To(BeZero())
	})
})
