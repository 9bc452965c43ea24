package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

//
// ========== 可调常量与内部错误 ==========
//

const (
	defaultResponseTimeout   = 10 * time.Second
	defaultReadTimeout       = 200 * time.Millisecond
	recoverableBackoff       = 100 * time.Millisecond
	interLinePause           = 50 * time.Millisecond
	initializeCommandSpacing = 500 * time.Millisecond
)

var (
	// ErrCommandTimeout AT 命令在超时时间内没有结束标记
	ErrCommandTimeout = errors.New("at command timeout")
	// ErrCommandFailed 模块返回 ERROR / +CME ERROR
	ErrCommandFailed = errors.New("at command failed")
)

// ATError 带命令与模块原始错误行的失败信息
type ATError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *ATError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s失败: %s (%v)", e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s失败: %s", e.Operation, e.Reason)
}

func (e *ATError) Unwrap() error { return e.Err }

func newATError(operation, reason string, err error) *ATError {
	return &ATError{Operation: operation, Reason: reason, Err: err}
}

//
// ========== 内部小工具函数 ==========
//

// writeCommand 负责写入命令与基本日志。
func (m *Modem) writeCommand(cmd string) error {
	fmt.Printf("📤 发送命令: %s\n", maskSecrets(strings.TrimRight(cmd, "\r\n")))
	_, err := m.port.Write([]byte(cmd))
	if err != nil {
		return fmt.Errorf("写入命令失败: %w", err)
	}
	return nil
}

// maskSecrets PIN/PUK 类命令只打印命令名
func maskSecrets(cmd string) string {
	if strings.HasPrefix(cmd, "AT+CPWD=") || strings.HasPrefix(cmd, "AT+CPIN=") {
		return cmd[:strings.Index(cmd, "=")+1] + "***"
	}
	return cmd
}

// readNextLine 读取一行，遇到临时性可恢复错误（超时/EOF）时把已读到的半行留在 carry 中,返回空串与 nil 驱动上层继续轮询。
func readNextLine(reader *bufio.Reader, carry *strings.Builder) (string, error) {
	line, err := reader.ReadString('\n')
	if err == nil {
		if carry.Len() > 0 {
			line = carry.String() + line
			carry.Reset()
		}
		return line, nil
	}

	carry.WriteString(line)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		time.Sleep(recoverableBackoff)
		return "", nil
	}
	if err == io.EOF {
		time.Sleep(recoverableBackoff)
		return "", nil
	}
	return "", fmt.Errorf("读取响应失败: %w", err)
}

// isTerminalLine 判断是否为结束标记（OK/ERROR/+CME ERROR 等）。
// 以 + 或 ^ 开头的数据行(如 +CPBR: ... "OK")不作为结束标记。
func isTerminalLine(line string) bool {
	t := strings.TrimSpace(line)
	if t == "OK" || t == "ERROR" || strings.HasPrefix(t, "ERROR:") {
		return true
	}
	if isErrorLine(t) {
		return true
	}
	if strings.HasPrefix(t, "+") || strings.HasPrefix(t, "^") || strings.HasPrefix(t, "$") {
		return false
	}
	return strings.HasSuffix(t, "OK") || strings.HasSuffix(t, "ERROR")
}

func isErrorLine(t string) bool {
	return t == "ERROR" || strings.HasPrefix(t, "ERROR:") ||
		strings.HasPrefix(t, "+CME ERROR") || strings.HasPrefix(t, "+CMS ERROR")
}

// responseError 从完整响应中提取错误行
func responseError(cmd, response string) error {
	for _, rawLine := range strings.Split(response, "\n") {
		line := strings.TrimSpace(rawLine)
		if isErrorLine(line) {
			return newATError(maskSecrets(strings.TrimSpace(cmd)), line, ErrCommandFailed)
		}
	}
	return nil
}

//
// ========== 对外方法 ==========
//

// SendCommand 发送单条 AT 指令并收集直到出现 OK/ERROR 结束的响应文本。
func (m *Modem) SendCommand(cmd string) (string, error) {
	return m.SendCommandContext(context.Background(), cmd)
}

// SendCommandContext 同 SendCommand,ctx 取消时提前返回
func (m *Modem) SendCommandContext(ctx context.Context, cmd string) (string, error) {
	if err := m.writeCommand(cmd); err != nil {
		return "", err
	}

	reader := bufio.NewReader(m.port)
	var response, carry strings.Builder
	timeout := time.After(m.config.commandTimeout())

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timeout:
			return "", fmt.Errorf("%w: %s (%s)", ErrCommandTimeout, maskSecrets(strings.TrimSpace(cmd)), m.config.commandTimeout())
		default:
			line, err := readNextLine(reader, &carry)
			if err != nil {
				return "", err
			}
			if line == "" { // 可恢复情况：继续等
				continue
			}

			fmt.Printf("📥 收到: %s", line)
			response.WriteString(line)

			if isTerminalLine(line) {
				return response.String(), nil
			}
			time.Sleep(interLinePause)
		}
	}
}

// execute 发送命令并把 ERROR 响应转换为 *ATError
func (m *Modem) execute(ctx context.Context, cmd string) (string, error) {
	response, err := m.SendCommandContext(ctx, cmd)
	if err != nil {
		return "", err
	}
	if err := responseError(cmd, response); err != nil {
		return response, err
	}
	return response, nil
}

// Initialize 执行一组基础 AT 指令进行模块初始化。
func (m *Modem) Initialize() error {
	fmt.Println("正在初始化设备...")

	commands := []string{
		CMD_RESET,
		CMD_ECHO_OFF,
		CMD_VERBOSE_ERRORS,
	}

	for _, cmd := range commands {
		if _, err := m.SendCommand(cmd); err != nil {
			return fmt.Errorf("初始化命令 %s 失败: %w", strings.TrimSpace(cmd), err)
		}
		time.Sleep(initializeCommandSpacing)
	}

	fmt.Println("✅ 设备初始化完成")
	return nil
}
