package modem

import (
	"io"

	"github.com/tarm/serial"
)

// Modem 表示一个打开的 4G 模块串口会话：
//
//	port: 串口句柄(测试中可替换为内存端口)
//	config: 初始化时传入的配置（端口号、波特率、超时等）
//	operator: 已检测到的运营商类型（可能为 Unknown, 需调用 DetectOperator）
//	identity: 初始化探测阶段读取的 IMEI/MEID/固件版本
type Modem struct {
	port     io.ReadWriteCloser
	config   ModemConfig
	operator OperatorType
	identity Identity
}

// NewModem 打开串口并创建 Modem 实例
func NewModem(config ModemConfig) (*Modem, error) {
	c := &serial.Config{
		Name:        config.PortName,
		Baud:        config.BaudRate,
		ReadTimeout: config.readTimeout(),
	}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}

	return NewModemWithPort(p, config), nil
}

// NewModemWithPort 在已打开的端口上创建 Modem
func NewModemWithPort(port io.ReadWriteCloser, config ModemConfig) *Modem {
	return &Modem{
		port:   port,
		config: config,
	}
}

// Close 关闭串口（若已打开）
func (m *Modem) Close() {
	if m.port != nil {
		m.port.Close()
	}
}
