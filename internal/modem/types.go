package modem

import "time"

type OperatorType int

const (
	OperatorUnknown OperatorType = iota
	OperatorChinaMobile
	OperatorChinaUnicom
	OperatorChinaTelecom
	OperatorChinaTietong
)

func (o OperatorType) String() string {
	switch o {
	case OperatorChinaMobile:
		return "中国移动"
	case OperatorChinaUnicom:
		return "中国联通"
	case OperatorChinaTelecom:
		return "中国电信"
	case OperatorChinaTietong:
		return "中国铁通"
	default:
		return "未知运营商"
	}
}

// RadioType 模块当前的接入制式
type RadioType int

const (
	RadioNone RadioType = iota
	RadioGSM
	RadioCDMA
)

func (r RadioType) String() string {
	switch r {
	case RadioGSM:
		return "GSM"
	case RadioCDMA:
		return "CDMA"
	default:
		return "NONE"
	}
}

// Identity 模块启动时读取的设备标识
type Identity struct {
	IMEI     string `json:"imei"`
	MEID     string `json:"meid,omitempty"`
	Revision string `json:"revision"` // AT+CGMR 返回的固件/基带版本
}

// PhonebookEntry SIM 卡通讯录中的一条记录,Location 从 1 开始
type PhonebookEntry struct {
	Location int    `json:"location"`
	Number   string `json:"number"`
	Name     string `json:"name"`
}

type ModemConfig struct {
	PortName         string
	BaudRate         int
	ReadTimeout      time.Duration // 串口单次读取超时
	CommandTimeout   time.Duration // 单条 AT 命令总超时
	TaskBacklog      int           // 串口任务队列长度
	PhonebookStorage string        // ADN 所在存储区,通常为 "SM"
}

func (c ModemConfig) readTimeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return defaultReadTimeout
	}
	return c.ReadTimeout
}

func (c ModemConfig) commandTimeout() time.Duration {
	if c.CommandTimeout <= 0 {
		return defaultResponseTimeout
	}
	return c.CommandTimeout
}

func (c ModemConfig) phonebookStorage() string {
	if c.PhonebookStorage == "" {
		return "SM"
	}
	return c.PhonebookStorage
}
