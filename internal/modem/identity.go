package modem

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const (
	imeiMinLength = 14
	imeiMaxLength = 17
	meidLength    = 14
)

// ReadIdentity 读取 IMEI、MEID 与固件版本
// 只支持 GSM 的模块对 AT^MEID 返回 ERROR,此时 MEID 留空
func (m *Modem) ReadIdentity(ctx context.Context) (Identity, error) {
	response, err := m.execute(ctx, CMD_GET_IMEI)
	if err != nil {
		return Identity{}, fmt.Errorf("获取IMEI失败: %w", err)
	}
	imei, err := parseIMEI(response)
	if err != nil {
		return Identity{}, err
	}
	identity := Identity{IMEI: imei}

	if response, err := m.execute(ctx, CMD_GET_MEID); err != nil {
		log.Printf("%s 模块不支持 MEID: %v", logPrefix, err)
	} else {
		identity.MEID = parseMEID(response)
	}

	if response, err := m.execute(ctx, CMD_GET_REVISION); err != nil {
		log.Printf("%s 读取固件版本失败: %v", logPrefix, err)
	} else {
		identity.Revision = parseRevision(response)
	}

	m.identity = identity
	return identity, nil
}

// GetIdentity 返回最近一次读取的设备标识
func (m *Modem) GetIdentity() Identity {
	return m.identity
}

// parseIMEI 兼容 "+CGSN: 8612..." 与裸数字两种返回
func parseIMEI(response string) (string, error) {
	for _, line := range payloadLines(response, "+CGSN:") {
		line = strings.Trim(line, "\"")
		if len(line) >= imeiMinLength && len(line) <= imeiMaxLength && isAllDigits(line) {
			return line, nil
		}
	}
	return "", fmt.Errorf("未获取到IMEI")
}

// parseMEID 取 "^MEID: A1000049B2C3D4" 中的 14 位十六进制串(部分模块带 0x 前缀)
func parseMEID(response string) string {
	for _, line := range payloadLines(response, "^MEID:") {
		line = strings.TrimPrefix(strings.TrimPrefix(line, "0x"), "0X")
		if len(line) == meidLength && isHexString(line) {
			return strings.ToUpper(line)
		}
	}
	return ""
}

func parseRevision(response string) string {
	lines := payloadLines(response, "+CGMR:")
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// payloadLines 去掉回显、OK 与给定前缀,返回剩余的非空行
func payloadLines(response, prefix string) []string {
	var lines []string
	for _, rawLine := range strings.Split(response, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || line == "OK" || strings.HasPrefix(line, "AT") {
			continue
		}
		if prefix != "" && strings.HasPrefix(line, prefix) {
			line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
		lines = append(lines, line)
	}
	return lines
}
