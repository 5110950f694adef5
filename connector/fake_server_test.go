package connector

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRedis 只实现测试所需命令的 RESP2 服务端
type fakeRedis struct {
	ln       net.Listener
	mu       sync.Mutex
	commands []string
	conns    []*fakeConn
	// readOnlyReply 非空时作为 READONLY 的错误回复
	readOnlyReply string
}

type fakeConn struct {
	net.Conn
	mu       sync.Mutex
	w        *bufio.Writer
	channels map[string]bool
}

func newFakeRedis(t *testing.T) *fakeRedis {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return startFakeRedis(t, ln)
}

// newFakeRedisTLS 使用给定证书在 TLS 上提供服务
func newFakeRedisTLS(t *testing.T, certFile, keyFile string) *fakeRedis {
	t.Helper()
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{pair}})
	require.NoError(t, err)
	return startFakeRedis(t, ln)
}

func startFakeRedis(t *testing.T, ln net.Listener) *fakeRedis {
	s := &fakeRedis{ln: ln}
	t.Cleanup(s.close)
	go s.serve()
	return s
}

func (s *fakeRedis) addr() string {
	return s.ln.Addr().String()
}

func (s *fakeRedis) close() {
	_ = s.ln.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

func (s *fakeRedis) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		fc := &fakeConn{Conn: conn, w: bufio.NewWriter(conn), channels: make(map[string]bool)}
		s.mu.Lock()
		s.conns = append(s.conns, fc)
		s.mu.Unlock()
		go s.handle(fc)
	}
}

func (s *fakeRedis) handle(c *fakeConn) {
	defer func() {
		c.mu.Lock()
		clear(c.channels)
		c.mu.Unlock()
		_ = c.Close()
	}()
	r := bufio.NewReader(c)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		name := strings.ToUpper(args[0])
		s.mu.Lock()
		s.commands = append(s.commands, strings.ToUpper(strings.Join(args, " ")))
		readOnlyReply := s.readOnlyReply
		s.mu.Unlock()

		c.mu.Lock()
		switch name {
		case "HELLO":
			c.w.WriteString("-ERR unknown command 'HELLO'\r\n")
		case "PING":
			if len(c.channels) > 0 {
				c.w.WriteString("*2\r\n$4\r\npong\r\n$0\r\n\r\n")
			} else {
				c.w.WriteString("+PONG\r\n")
			}
		case "READONLY":
			if readOnlyReply != "" {
				c.w.WriteString("-" + readOnlyReply + "\r\n")
			} else {
				c.w.WriteString("+OK\r\n")
			}
		case "SUBSCRIBE":
			for _, ch := range args[1:] {
				c.channels[ch] = true
				writeArray(c.w, "subscribe", ch)
				fmt.Fprintf(c.w, ":%d\r\n", len(c.channels))
			}
		case "UNSUBSCRIBE":
			for ch := range c.channels {
				delete(c.channels, ch)
				writeArray(c.w, "unsubscribe", ch)
				fmt.Fprintf(c.w, ":%d\r\n", len(c.channels))
			}
		default:
			c.w.WriteString("+OK\r\n")
		}
		err = c.w.Flush()
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// publish 向订阅了 channel 的连接推送消息
func (s *fakeRedis) publish(channel, payload string) int {
	s.mu.Lock()
	conns := append([]*fakeConn(nil), s.conns...)
	s.mu.Unlock()

	n := 0
	for _, c := range conns {
		c.mu.Lock()
		if c.channels[channel] {
			fmt.Fprintf(c.w, "*3\r\n")
			writeBulk(c.w, "message")
			writeBulk(c.w, channel)
			writeBulk(c.w, payload)
			if c.w.Flush() == nil {
				n++
			}
		}
		c.mu.Unlock()
	}
	return n
}

func (s *fakeRedis) received(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cmd := range s.commands {
		if strings.HasPrefix(cmd, prefix) {
			n++
		}
	}
	return n
}

func (s *fakeRedis) subscribers(channel string) int {
	s.mu.Lock()
	conns := append([]*fakeConn(nil), s.conns...)
	s.mu.Unlock()

	n := 0
	for _, c := range conns {
		c.mu.Lock()
		if c.channels[channel] {
			n++
		}
		c.mu.Unlock()
	}
	return n
}

func writeArray(w *bufio.Writer, kind, channel string) {
	fmt.Fprintf(w, "*3\r\n")
	writeBulk(w, kind)
	writeBulk(w, channel)
}

func writeBulk(w *bufio.Writer, s string) {
	fmt.Fprintf(w, "$%d\r\n%s\r\n", len(s), s)
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return strings.Fields(line), nil
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := readLine(r)
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimPrefix(header, "$"))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
