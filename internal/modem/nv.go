package modem

import (
	"context"
	"fmt"
	"strings"
)

// ReadNV 读取厂商 NV 项,返回去掉引号的字符串值
// 响应形如 `$QCNV: "HW-V2"`,部分固件只回裸值
func (m *Modem) ReadNV(ctx context.Context, item int) (string, error) {
	response, err := m.execute(ctx, fmt.Sprintf(CMD_READ_NV, item))
	if err != nil {
		return "", fmt.Errorf("读取NV项 %d 失败: %w", item, err)
	}

	lines := payloadLines(response, "$QCNV:")
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Trim(lines[0], "\""), nil
}
