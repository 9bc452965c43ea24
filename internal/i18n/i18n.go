// Package i18n 拨号盘界面字符串,按 Accept-Language 或配置选择语言
package i18n

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"dialcode-gateway/internal/dialcode"
)

// ErrEmptyStringID 字符串表中出现空 id
var ErrEmptyStringID = errors.New("empty string id")

var english = map[string]string{
	dialcode.StrIMEI:                "IMEI",
	dialcode.StrMEID:                "MEID",
	dialcode.StrDeviceID:            "Device ID",
	dialcode.StrDeviceVersion:       "Device version",
	dialcode.StrHardwareVersion:     "Hardware version",
	dialcode.StrSoftwareVersion:     "Software version",
	dialcode.StrArmVersion:          "ARM version",
	dialcode.StrQcnVersion:          "QCN version",
	dialcode.StrBaseline:            "Baseline",
	dialcode.StrBuildID:             "PWV build id",
	dialcode.StrErrorTitle:          "Error",
	dialcode.StrFactoryTestMissing:  "Factory test tool is not installed",
	dialcode.StrMaxToolMissing:      "Max tool is not installed",
	dialcode.StrCheckTriggerMissing: "Check trigger tool is not installed",
	dialcode.StrSimContactsTitle:    "SIM contacts",
	dialcode.StrSimContactsLoading:  "Loading from SIM card…",
	dialcode.StrCallNumber:          "Call %s",
}

var simplifiedChinese = map[string]string{
	dialcode.StrIMEI:                "IMEI",
	dialcode.StrMEID:                "MEID",
	dialcode.StrDeviceID:            "设备识别码",
	dialcode.StrDeviceVersion:       "设备版本",
	dialcode.StrHardwareVersion:     "硬件版本",
	dialcode.StrSoftwareVersion:     "软件版本",
	dialcode.StrArmVersion:          "ARM 版本",
	dialcode.StrQcnVersion:          "QCN 版本",
	dialcode.StrBaseline:            "基线版本",
	dialcode.StrBuildID:             "PWV 内部版本号",
	dialcode.StrErrorTitle:          "错误",
	dialcode.StrFactoryTestMissing:  "未安装工厂测试工具",
	dialcode.StrMaxToolMissing:      "未安装 Max 工具",
	dialcode.StrCheckTriggerMissing: "未安装触发检测工具",
	dialcode.StrSimContactsTitle:    "SIM 卡联系人",
	dialcode.StrSimContactsLoading:  "正在从 SIM 卡读取…",
	dialcode.StrCallNumber:          "呼叫 %s",
}

// Bundle 全部语言的字符串目录
type Bundle struct {
	catalog  catalog.Catalog
	matcher  language.Matcher
	fallback language.Tag
}

// NewBundle defaultLocale 无法解析或不受支持时使用英文
func NewBundle(defaultLocale string) *Bundle {
	supported := []language.Tag{language.English, language.SimplifiedChinese}
	builder, err := newCatalog(map[language.Tag]map[string]string{
		language.English:           english,
		language.SimplifiedChinese: simplifiedChinese,
	})
	if err != nil {
		// 缺失的条目在 Text 中退回为字符串 id
		log.Printf("[i18n] 字符串目录加载不完整: %v", err)
	}

	bundle := &Bundle{
		catalog:  builder,
		matcher:  language.NewMatcher(supported),
		fallback: language.English,
	}
	bundle.fallback = bundle.match(defaultLocale)
	return bundle
}

// newCatalog 逐条登记,出错时继续登记其余条目并返回合并后的错误
func newCatalog(tables map[language.Tag]map[string]string) (*catalog.Builder, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))

	var errs []error
	for tag, table := range tables {
		for id, text := range table {
			if id == "" {
				errs = append(errs, fmt.Errorf("%s: %w", tag, ErrEmptyStringID))
				continue
			}
			if err := builder.SetString(tag, id, text); err != nil {
				errs = append(errs, fmt.Errorf("%s %q: %w", tag, id, err))
			}
		}
	}
	return builder, errors.Join(errs...)
}

// Localizer 按 Accept-Language 头选择语言,为空时使用默认语言
func (bundle *Bundle) Localizer(acceptLanguage string) *Localizer {
	tag := bundle.fallback
	if acceptLanguage != "" {
		tag = bundle.match(acceptLanguage)
	}
	return &Localizer{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(bundle.catalog)),
	}
}

func (bundle *Bundle) match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return bundle.fallback
	}
	_, index, confidence := bundle.matcher.Match(tags...)
	if confidence == language.No {
		return bundle.fallback
	}
	return []language.Tag{language.English, language.SimplifiedChinese}[index]
}

// Localizer 单一语言的字符串查询,满足 dialcode.Localizer
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

var _ dialcode.Localizer = (*Localizer)(nil)

// Tag 选中的语言
func (localizer *Localizer) Tag() language.Tag {
	return localizer.tag
}

// Text 未登记的 id 原样返回
func (localizer *Localizer) Text(id string, args ...any) string {
	return localizer.printer.Sprintf(id, args...)
}
