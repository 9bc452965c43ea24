package modem

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

var (
	// +CPBS: "SM",12,250
	cpbsPattern = regexp.MustCompile(`\+CPBS:\s*"(\w+)"\s*,\s*(\d+)\s*,\s*(\d+)`)
	// +CPBR: 1,"13800138000",129,"0041006C006900630065"
	cpbrPattern = regexp.MustCompile(`\+CPBR:\s*(\d+)\s*,\s*"([^"]*)"\s*,\s*(\d+)\s*,\s*"([^"]*)"`)
)

// ReadPhonebook 读取 ADN 存储区的全部记录,返回值按位置排列,空位置为零值记录
func (m *Modem) ReadPhonebook(ctx context.Context) ([]PhonebookEntry, error) {
	if _, err := m.execute(ctx, CMD_SET_CHARSET); err != nil {
		return nil, fmt.Errorf("切换UCS2字符集失败: %w", err)
	}
	defer m.restoreCharset()

	storage := m.config.phonebookStorage()
	if _, err := m.execute(ctx, fmt.Sprintf(CMD_SELECT_PHONEBOOK, storage)); err != nil {
		return nil, fmt.Errorf("选择电话簿 %s 失败: %w", storage, err)
	}

	response, err := m.execute(ctx, CMD_QUERY_PHONEBOOK)
	if err != nil {
		return nil, fmt.Errorf("查询电话簿容量失败: %w", err)
	}
	used, total, err := parsePhonebookCapacity(response)
	if err != nil {
		return nil, err
	}
	if used == 0 || total == 0 {
		return nil, nil
	}

	response, err = m.execute(ctx, fmt.Sprintf(CMD_READ_PHONEBOOK, 1, total))
	if err != nil {
		return nil, fmt.Errorf("读取电话簿失败: %w", err)
	}

	entries := parsePhonebookEntries(response)
	log.Printf("%s 📒 电话簿 %s: 读取 %d/%d 条", logPrefix, storage, len(entries), used)
	return layoutByLocation(entries), nil
}

// restoreCharset 读取结束后切回 GSM 字符集,失败只记日志
func (m *Modem) restoreCharset() {
	if _, err := m.SendCommand(CMD_SET_CHARSET_GSM); err != nil {
		log.Printf("%s 恢复字符集失败: %v", logPrefix, err)
	}
}

func parsePhonebookCapacity(response string) (used, total int, err error) {
	match := cpbsPattern.FindStringSubmatch(response)
	if match == nil {
		return 0, 0, fmt.Errorf("无法解析电话簿容量: %q", strings.TrimSpace(response))
	}
	used, _ = strconv.Atoi(match[2])
	total, _ = strconv.Atoi(match[3])
	return used, total, nil
}

func parsePhonebookEntries(response string) []PhonebookEntry {
	var entries []PhonebookEntry
	for _, line := range strings.Split(response, "\n") {
		match := cpbrPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		location, err := strconv.Atoi(match[1])
		if err != nil || location <= 0 {
			continue
		}
		entries = append(entries, PhonebookEntry{
			Location: location,
			Number:   decodePhonebookNumber(match[2]),
			Name:     decodePhonebookName(match[4]),
		})
	}
	return entries
}

// layoutByLocation 把记录放到 Location-1 的下标上
func layoutByLocation(entries []PhonebookEntry) []PhonebookEntry {
	last := 0
	for _, entry := range entries {
		if entry.Location > last {
			last = entry.Location
		}
	}

	rows := make([]PhonebookEntry, last)
	for _, entry := range entries {
		rows[entry.Location-1] = entry
	}
	return rows
}

// decodePhonebookNumber UCS2 模式下号码也可能被编码,解码结果必须是可拨字符,否则按原文返回
func decodePhonebookNumber(raw string) string {
	if !isValidUTF16BEHex(raw) || raw == "" {
		return raw
	}
	decoded, err := decodeUTF16BEHex(raw)
	if err != nil || !isDialString(decoded) {
		return raw
	}
	return decoded
}

// decodePhonebookName 优先按 UCS2 解码,其次按 GBK(部分模块在 GSM 字符集下直接输出 GBK 字节)
func decodePhonebookName(raw string) string {
	if raw != "" && isValidUTF16BEHex(raw) {
		if decoded, err := decodeUTF16BEHex(raw); err == nil {
			return decoded
		}
	}
	if utf8.ValidString(raw) {
		return raw
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func isDialString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !strings.ContainsRune("*#+,;pPwW", r) {
			return false
		}
	}
	return true
}
