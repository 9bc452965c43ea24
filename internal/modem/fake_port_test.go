package modem

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

// fakePort 按命令回放预设响应的内存串口;未登记的命令不回任何数据
type fakePort struct {
	mu      sync.Mutex
	replies map[string]string
	pending bytes.Buffer
	written []string
	closed  bool
}

func newFakePort(replies map[string]string) *fakePort {
	return &fakePort{replies: replies}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmd := strings.TrimSpace(string(b))
	p.written = append(p.written, cmd)
	if reply, ok := p.replies[cmd]; ok {
		p.pending.WriteString(reply)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.Len() == 0 {
		return 0, io.EOF
	}
	return p.pending.Read(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func testConfig() ModemConfig {
	return ModemConfig{
		PortName:       "/dev/fake",
		BaudRate:       115200,
		CommandTimeout: 400 * time.Millisecond,
		TaskBacklog:    4,
	}
}

func newTestModem(replies map[string]string) (*Modem, *fakePort) {
	port := newFakePort(replies)
	return NewModemWithPort(port, testConfig()), port
}
