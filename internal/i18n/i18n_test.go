package i18n

import (
	"testing"

	"github.com/nalgeon/be"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"dialcode-gateway/internal/dialcode"
)

func TestCatalogsCoverEveryString(t *testing.T) {
	for _, id := range dialcode.StringIDs() {
		_, ok := english[id]
		be.True(t, ok)
		_, ok = simplifiedChinese[id]
		be.True(t, ok)
	}
	be.Equal(t, len(english), len(dialcode.StringIDs()))
	be.Equal(t, len(simplifiedChinese), len(dialcode.StringIDs()))
}

func TestLocalizerByAcceptLanguage(t *testing.T) {
	bundle := NewBundle("en")

	zh := bundle.Localizer("zh-CN,zh;q=0.9,en;q=0.8")
	be.Equal(t, zh.Tag(), language.SimplifiedChinese)
	be.Equal(t, zh.Text(dialcode.StrCallNumber, "张三"), "呼叫 张三")
	be.Equal(t, zh.Text(dialcode.StrSimContactsTitle), "SIM 卡联系人")

	en := bundle.Localizer("en-US")
	be.Equal(t, en.Text(dialcode.StrCallNumber, "Alice"), "Call Alice")
	be.Equal(t, en.Text(dialcode.StrBuildID), "PWV build id")
}

func TestLocalizerDefaults(t *testing.T) {
	be.Equal(t, NewBundle("zh-CN").Localizer("").Tag(), language.SimplifiedChinese)
	be.Equal(t, NewBundle("en").Localizer("fr-FR").Tag(), language.English)
	be.Equal(t, NewBundle("!!").Localizer("").Tag(), language.English)
}

func TestUnknownIDIsReturnedAsIs(t *testing.T) {
	be.Equal(t, NewBundle("en").Localizer("").Text("no_such_string"), "no_such_string")
}

func TestCatalogLoadErrors(t *testing.T) {
	_, err := newCatalog(map[language.Tag]map[string]string{
		language.English:           english,
		language.SimplifiedChinese: simplifiedChinese,
	})
	be.Err(t, err, nil)

	builder, err := newCatalog(map[language.Tag]map[string]string{
		language.English: {"": "orphan", dialcode.StrIMEI: "IMEI"},
	})
	be.Err(t, err, ErrEmptyStringID)

	// 其余条目照常登记
	printer := message.NewPrinter(language.English, message.Catalog(builder))
	be.Equal(t, printer.Sprintf(dialcode.StrIMEI), "IMEI")
}
