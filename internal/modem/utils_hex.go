package modem

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// UCS2 模式下每个编码单元是 4 个 HEX 字符
const utf16HexCharsPerUnit = 4

var utf16BigEndian = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// isValidUTF16BEHex 长度是编码单元的整数倍且全部是 HEX 字符
func isValidUTF16BEHex(input string) bool {
	return len(input)%utf16HexCharsPerUnit == 0 && isHexString(input)
}

func isHexCharacter(char rune) bool {
	return (char >= '0' && char <= '9') ||
		(char >= 'a' && char <= 'f') ||
		(char >= 'A' && char <= 'F')
}

// decodeUTF16BEHex 解码 UTF-16BE HEX 串,代理对由 x/text 处理
func decodeUTF16BEHex(hexString string) (string, error) {
	if !isValidUTF16BEHex(hexString) {
		return "", fmt.Errorf("无效的 UTF-16BE HEX: %q", hexString)
	}

	data, err := hex.DecodeString(hexString)
	if err != nil {
		return "", fmt.Errorf("HEX 解码失败: %w", err)
	}

	decoded, err := utf16BigEndian.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("UTF-16BE 解码失败: %w", err)
	}
	return string(decoded), nil
}

func isHexString(input string) bool {
	if input == "" {
		return false
	}
	for _, char := range input {
		if !isHexCharacter(char) {
			return false
		}
	}
	return true
}
