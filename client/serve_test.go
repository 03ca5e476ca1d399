//go:build linux

package client_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/agi/client"
	"github.com/luma/agi/protocol"
	"github.com/luma/agi/transport"
)

var _ = Describe("Serve", func() {
	var (
		loop   *transport.Loop
		cancel context.CancelFunc
		runErr chan error
	)

	BeforeEach(func() {
		var err error
		loop, err = transport.NewLoop(transport.Options{Log: zap.NewNop()})
		Expect(err).To(Succeed())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())

		runErr = make(chan error, 1)
		go func() { runErr <- loop.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(runErr, 5*time.Second).Should(Receive(BeNil()))
	})

	wait := func(t *transport.Task) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := t.Wait(ctx)
		Expect(err).NotTo(MatchError(context.DeadlineExceeded), "task never finished")
		return err
	}

	attach := func() (*transport.Conn, net.Conn) {
		fd, peer := socketPair()

		conn, err := loop.AttachFD(fd)
		Expect(err).To(Succeed())

		return conn, peer
	}

	It("runs many sessions on one loop, each getting its own replies", func() {
		const (
			sessions = 20
			commands = 5
		)

		tasks := make([]*transport.Task, 0, sessions)

		for i := 0; i < sessions; i++ {
			i := i
			conn, peer := attach()

			go func() {
				defer GinkgoRecover()
				defer peer.Close()

				_, err := fmt.Fprintf(peer, "agi_channel: SIP/%d\nagi_uniqueid: %d.1\n\n", i, i)
				Expect(err).To(Succeed())

				r := bufio.NewReader(peer)
				for n := 0; n < commands; n++ {
					line, err := r.ReadString('\n')
					Expect(err).To(Succeed())
					Expect(line).To(Equal(fmt.Sprintf("GET VARIABLE n%d\n", n)))

					// Stagger replies so sessions interleave on the loop
					time.Sleep(time.Duration((sessions-i)%3) * time.Millisecond)

					_, err = fmt.Fprintf(peer, "200 result=%d (s%d)\n", i*100+n, i)
					Expect(err).To(Succeed())
				}

				// The session closes its end once the handler returns
				_, err = r.ReadString('\n')
				Expect(err).To(MatchError(io.EOF))
			}()

			tasks = append(tasks, client.Serve(loop, conn, func(ctx context.Context, s *client.Session) error {
				if channel, _ := s.Get("channel"); channel != fmt.Sprintf("SIP/%d", i) {
					return fmt.Errorf("session %d got channel %q", i, channel)
				}

				for n := 0; n < commands; n++ {
					resp, err := s.Exec(ctx, protocol.GetVariable, fmt.Sprintf("n%d", n))
					if err != nil {
						return err
					}

					if !resp.Success() || *resp.Result != i*100+n || resp.Note == nil || *resp.Note != fmt.Sprintf("s%d", i) {
						return fmt.Errorf("session %d command %d got %q", i, n, resp.Raw)
					}
				}

				return nil
			}, client.Options{}))
		}

		for _, t := range tasks {
			Expect(wait(t)).To(Succeed())
		}
	})

	It("fails the parked command when the remote end disconnects", func() {
		conn, peer := attach()

		go func() {
			defer GinkgoRecover()

			_, err := peer.Write([]byte("agi_channel: SIP/1\n\n"))
			Expect(err).To(Succeed())

			line, err := bufio.NewReader(peer).ReadString('\n')
			Expect(err).To(Succeed())
			Expect(line).To(Equal("ANSWER\n"))

			Expect(peer.Close()).To(Succeed())
		}()

		var reason error
		t := client.Serve(loop, conn, func(ctx context.Context, s *client.Session) error {
			s.OnShutdown(client.ShutdownFunc(func(ctx context.Context, r error) error {
				reason = r
				return nil
			}))

			_, err := s.Exec(ctx, protocol.Answer)
			return err
		}, client.Options{})

		err := wait(t)
		Expect(errors.Is(err, client.ErrChannelFailure)).To(BeTrue())
		Expect(errors.Is(err, transport.ErrSuspensionFailure)).To(BeTrue())
		Expect(errors.Is(err, transport.ErrConnClosed)).To(BeTrue())
		Expect(reason).To(BeIdenticalTo(err))
	})

	It("fails the session when the header is cut short", func() {
		conn, peer := attach()

		go func() {
			defer GinkgoRecover()

			_, err := peer.Write([]byte("agi_channel: SIP/1\n"))
			Expect(err).To(Succeed())
			Expect(peer.Close()).To(Succeed())
		}()

		called := false
		t := client.Serve(loop, conn, func(ctx context.Context, s *client.Session) error {
			called = true
			return nil
		}, client.Options{})

		err := wait(t)
		Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())
		Expect(called).To(BeFalse())
	})
})

var _ = Describe("Serve on a stopping loop", func() {
	It("runs shutdown hooks with ErrLoopClosed", func() {
		loop, err := transport.NewLoop(transport.Options{})
		Expect(err).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		runErr := make(chan error, 1)
		go func() { runErr <- loop.Run(ctx) }()

		fd, peer := socketPair()
		defer peer.Close()

		conn, err := loop.AttachFD(fd)
		Expect(err).To(Succeed())

		_, err = peer.Write([]byte("\n"))
		Expect(err).To(Succeed())

		parked := make(chan struct{})
		var reason error

		t := client.Serve(loop, conn, func(ctx context.Context, s *client.Session) error {
			s.OnShutdown(client.ShutdownFunc(func(ctx context.Context, r error) error {
				reason = r
				return nil
			}))

			close(parked)
			_, err := s.Exec(context.Background(), protocol.WaitForDigit, -1)
			return err
		}, client.Options{})

		Eventually(parked).Should(BeClosed())
		cancel()

		Eventually(runErr, 5*time.Second).Should(Receive(BeNil()))

		Expect(t.Done()).To(BeClosed())
		Expect(errors.Is(t.Err(), transport.ErrLoopClosed)).To(BeTrue())
		Expect(errors.Is(reason, transport.ErrLoopClosed)).To(BeTrue())
	})
})

// socketPair returns one end of a connected unix socket as a raw fd, for
// the loop, and the other as a net.Conn playing Asterisk.
func socketPair() (int, net.Conn) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	Expect(err).To(Succeed())

	f := os.NewFile(uintptr(fds[1]), "peer")
	defer f.Close()

	peer, err := net.FileConn(f)
	Expect(err).To(Succeed())

	return fds[0], peer
}
