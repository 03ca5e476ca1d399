//go:build unix

package cmd

import (
	"context"
	"os"
	"strings"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/agi/transport"
)

var _ = Describe("channelInput()", func() {
	It("makes a piped stdin interruptible by a hangup", func() {
		fds := make([]int, 2)
		Expect(syscall.Pipe(fds)).To(Succeed())

		r := os.NewFile(uintptr(fds[0]), "stdin")
		w := os.NewFile(uintptr(fds[1]), "asterisk")
		defer r.Close()
		defer w.Close()

		c := &cobra.Command{}
		c.SetIn(r)

		in, closeIn := channelInput(c, zap.NewNop())
		defer closeIn()
		Expect(in).NotTo(BeIdenticalTo(r))

		hangup, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		_, err := transport.NewStream(in, w).ReadLine(hangup)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("leaves readers that aren't files alone", func() {
		src := strings.NewReader("agi_channel: SIP/1\n")

		c := &cobra.Command{}
		c.SetIn(src)

		in, closeIn := channelInput(c, zap.NewNop())
		defer closeIn()
		Expect(in).To(BeIdenticalTo(src))
	})
})
