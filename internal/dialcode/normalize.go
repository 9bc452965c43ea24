package dialcode

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// 可拨字符:数字、* # +,以及暂停/等待与通配符
func isDialable(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '*' || r == '#' || r == '+':
		return true
	case r == ',' || r == ';' || r == 'N':
		return true
	}
	return false
}

// StripSeparators 去掉空格、- ( ) . / 等分隔符,只保留可拨字符
func StripSeparators(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isDialable(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeDigits 全角转半角,任意 Unicode 十进制数字转 ASCII
func NormalizeDigits(s string) string {
	folded := width.Fold.String(s)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r > unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteByte(byte('0' + digitValue(r)))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// digitValue Nd 类数字总是从 0 开始、10 个一组连续排列,回溯到段首后取模即可
func digitValue(r rune) int {
	start := r
	for start > 0 && unicode.IsDigit(start-1) {
		start--
	}
	return int(r-start) % 10
}

// Normalize 分发前的完整规范化
func Normalize(raw string) string {
	return StripSeparators(NormalizeDigits(raw))
}

// keypadLetters ITU E.161 键盘字母映射
var keypadLetters = map[rune]rune{
	'A': '2', 'B': '2', 'C': '2',
	'D': '3', 'E': '3', 'F': '3',
	'G': '4', 'H': '4', 'I': '4',
	'J': '5', 'K': '5', 'L': '5',
	'M': '6', 'N': '6', 'O': '6',
	'P': '7', 'Q': '7', 'R': '7', 'S': '7',
	'T': '8', 'U': '8', 'V': '8',
	'W': '9', 'X': '9', 'Y': '9', 'Z': '9',
}

// ConvertKeypadLetters 把号码中的字母按键盘转成数字(tel: 意图填充时使用)
func ConvertKeypadLetters(s string) string {
	return strings.Map(func(r rune) rune {
		if d, ok := keypadLetters[unicode.ToUpper(r)]; ok {
			return d
		}
		return r
	}, s)
}
