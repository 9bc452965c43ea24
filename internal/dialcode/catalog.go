package dialcode

import (
	"strconv"
	"strings"

	"dialcode-gateway/internal/intent"
)

// ========== 固定拨号串 ==========

const (
	CodePrlVersion      = "*#0000#"
	CodeDeviceID        = "*#06#"
	CodeRegulatoryInfo  = "*#07#"
	CodeEngineerMode    = "*#7548135*#"
	CodeFactorySet      = "#38378#"
	CodeDiagPort        = "*76278#"
	CodeQLog            = "*#999"
	CodeGpsTool         = "*#311"
	CodeTouchCal        = "*#315"
	CodeDeviceInfo      = "*#316"
	CodeBuildID         = "*#317"
	CodeFactoryTest     = "*#318"
	CodeFactoryTest319  = "*#319"
	CodeFactoryTestScan = "*#1262*#"
	CodeScanType        = "*#1261*#"
	CodeScanAge         = "*#1260*#"
	CodeMaxTool         = "*#3250"
	CodeCheckTrigger    = "*#3251"
	CodeNetworkSetting  = "*#410"

	// CodeHookWarmUp 输入 *# 时提前初始化厂商接口,不算命中
	CodeHookWarmUp = "*#"

	// EngineerModeSecret 工程模式对应的暗码
	EngineerModeSecret = "3878"

	secretCodePrefix = "*#*#"
	secretCodeSuffix = "#*#*"
	pinChangePrefix  = "**04"
	pinUnblockPrefix = "**05"
	adnSuffix        = "#"
	adnMinLen        = 2
	adnMaxLen        = 4
)

// Match 一次命中的结果
type Match struct {
	Rule     string
	Kind     ActionKind
	Payload  string
	Index    int
	Launcher *Launcher
}

// Rule 目录中的一条规则,匹配与载荷提取放在一起
type Rule struct {
	Name string
	Kind ActionKind
	// Active 为 nil 表示总是启用
	Active func(Snapshot) bool
	Match  func(input string) (Match, bool)
}

// Extra 启动组件时附带的布尔参数
type Extra struct {
	Key   string
	Value bool
}

// Launcher 诊断/厂商工具的启动目标
type Launcher struct {
	Name    string
	Code    string
	Package string
	Class   string
	// Action 非空时按隐式意图启动
	Action string
	Extras []Extra
	// MissingMessage 组件不存在时弹窗提示的字符串 id,空串表示只记日志
	MissingMessage string
}

// Intent 构造启动意图
func (l *Launcher) Intent() intent.Intent {
	var in intent.Intent
	if l.Action != "" {
		in = intent.NewAction(l.Action)
	} else {
		in = intent.NewComponent(l.Package, l.Class)
	}
	for _, extra := range l.Extras {
		in = in.WithBoolExtra(extra.Key, extra.Value)
	}
	return in
}

const (
	factoryPackage = "com.qualcomm.factory"
	factoryClass   = "com.qualcomm.factory.Framework.Framework"
)

// Launchers B 分支的启动器表,顺序即优先级
var Launchers = []*Launcher{
	{Name: "qlog", Code: CodeQLog, Package: "com.qualcomm.qlogcat", Class: "com.qualcomm.qlogcat.QLogcatActivity"},
	{Name: "gps", Code: CodeGpsTool, Package: "com.chartcross.gpstest", Class: "com.chartcross.gpstest.GPSTest"},
	{Name: "touchcal", Code: CodeTouchCal, Package: "com.dongbu.finetouchm", Class: "com.dongbu.finetouchm.MainActivity"},
	{Name: "scan-type", Code: CodeScanType, Action: intent.ActionScannerTypeSettings},
	{Name: "scan-age", Code: CodeScanAge, Action: intent.ActionAgeingDevice},
	{Name: "factory", Code: CodeFactoryTest, Package: factoryPackage, Class: factoryClass,
		Extras: []Extra{{Key: "msg", Value: true}}, MissingMessage: StrFactoryTestMissing},
	{Name: "factory-319", Code: CodeFactoryTest319, Package: factoryPackage, Class: factoryClass,
		Extras: []Extra{{Key: "msg", Value: false}}, MissingMessage: StrFactoryTestMissing},
	{Name: "factory-scan", Code: CodeFactoryTestScan, Package: factoryPackage, Class: factoryClass,
		Extras: []Extra{{Key: "msg", Value: true}}, MissingMessage: StrFactoryTestMissing},
	{Name: "max-tool", Code: CodeMaxTool, Package: "com.ped.maxq3250", Class: "com.ped.maxq3250.Maxq3250",
		MissingMessage: StrMaxToolMissing},
	{Name: "check-trigger", Code: CodeCheckTrigger, Package: "com.example.checktrigger", Class: "com.example.checktrigger.MainActivity",
		MissingMessage: StrCheckTriggerMissing},
	{Name: "network-setting", Code: CodeNetworkSetting, Package: "com.android.phone", Class: "com.android.phone.MobileNetworkSettings",
		Extras: []Extra{{Key: "networksetting", Value: true}}},
}

// LauncherByCode 按拨号串查找启动器
func LauncherByCode(code string) *Launcher {
	for _, launcher := range Launchers {
		if launcher.Code == code {
			return launcher
		}
	}
	return nil
}

// ========== 匹配与载荷提取 ==========

func literal(code string, kind ActionKind) func(string) (Match, bool) {
	return func(input string) (Match, bool) {
		if input != code {
			return Match{}, false
		}
		return Match{Kind: kind}, true
	}
}

// literalSecret 固定串命中后广播固定暗码
func literalSecret(code, payload string, kind ActionKind) func(string) (Match, bool) {
	return func(input string) (Match, bool) {
		if input != code {
			return Match{}, false
		}
		return Match{Kind: kind, Payload: payload}, true
	}
}

// literalTrimmed 固定串命中后去掉首尾各一个分隔符作为暗码(#38378# → 38378)
func literalTrimmed(code string) func(string) (Match, bool) {
	return func(input string) (Match, bool) {
		if input != code {
			return Match{}, false
		}
		return Match{Kind: ActionBroadcastSecretCode, Payload: input[1 : len(input)-1]}, true
	}
}

func launcherMatch(launcher *Launcher) func(string) (Match, bool) {
	return func(input string) (Match, bool) {
		if input != launcher.Code {
			return Match{}, false
		}
		return Match{Kind: ActionLaunchNamedActivity, Launcher: launcher}, true
	}
}

// MatchSecretCode *#*#<code>#*#*,payload 为两端标记之间的内容
func MatchSecretCode(input string) (Match, bool) {
	if len(input) <= len(secretCodePrefix)+len(secretCodeSuffix) {
		return Match{}, false
	}
	if !strings.HasPrefix(input, secretCodePrefix) || !strings.HasSuffix(input, secretCodeSuffix) {
		return Match{}, false
	}
	payload := input[len(secretCodePrefix) : len(input)-len(secretCodeSuffix)]
	return Match{Kind: ActionBroadcastSecretCode, Payload: payload}, true
}

// MatchAdn N#、NN#、NNN#,N 为正整数
func MatchAdn(input string) (Match, bool) {
	if len(input) < adnMinLen || len(input) > adnMaxLen || !strings.HasSuffix(input, adnSuffix) {
		return Match{}, false
	}
	prefix := input[:len(input)-len(adnSuffix)]
	for i := 0; i < len(prefix); i++ {
		if prefix[i] < '0' || prefix[i] > '9' {
			return Match{}, false
		}
	}
	index, err := strconv.Atoi(prefix)
	if err != nil || index < 1 {
		return Match{}, false
	}
	return Match{Kind: ActionQueryAdn, Index: index}, true
}

// MatchPinMmi **04...# 修改 PIN,**05...# 用 PUK 解锁
func MatchPinMmi(input string) (Match, bool) {
	if !strings.HasSuffix(input, "#") {
		return Match{}, false
	}
	if !strings.HasPrefix(input, pinChangePrefix) && !strings.HasPrefix(input, pinUnblockPrefix) {
		return Match{}, false
	}
	return Match{Kind: ActionHandlePinMmi, Payload: input}, true
}

// ========== 启用条件 ==========

func adnAllowed(snapshot Snapshot) bool {
	return !snapshot.Locked && snapshot.PhoneType == PhoneTypeGSM
}

func branchA(snapshot Snapshot) bool {
	return snapshot.Flags.DiagFactoryEnabled()
}

func branchB(snapshot Snapshot) bool {
	return !snapshot.Flags.DiagFactoryEnabled()
}

func touchCalAllowed(snapshot Snapshot) bool {
	return branchB(snapshot) && snapshot.Flags.TouchCal
}

// ========== 规则目录 ==========

var catalog = buildCatalog()

func buildCatalog() []Rule {
	rules := []Rule{
		{Name: "prl-version", Kind: ActionShowPrlVersion, Match: literal(CodePrlVersion, ActionShowPrlVersion)},
		{Name: "device-id", Kind: ActionShowDeviceID, Match: literal(CodeDeviceID, ActionShowDeviceID)},
		{Name: "regulatory-info", Kind: ActionShowRegulatoryInfo, Match: literal(CodeRegulatoryInfo, ActionShowRegulatoryInfo)},
		{Name: "engineer-mode", Kind: ActionShowEngineerMode, Match: literalSecret(CodeEngineerMode, EngineerModeSecret, ActionShowEngineerMode)},
		{Name: "pin-mmi", Kind: ActionHandlePinMmi, Match: MatchPinMmi},
		{Name: "adn", Kind: ActionQueryAdn, Active: adnAllowed, Match: MatchAdn},
		{Name: "secret-code", Kind: ActionBroadcastSecretCode, Match: MatchSecretCode},
		{Name: "factory-set", Kind: ActionBroadcastSecretCode, Active: branchA, Match: literalTrimmed(CodeFactorySet)},
		{Name: "diag-port", Kind: ActionBroadcastSecretCode, Active: branchA, Match: literalTrimmed(CodeDiagPort)},
	}

	for _, launcher := range Launchers {
		active := branchB
		if launcher.Code == CodeTouchCal {
			active = touchCalAllowed
		}
		rules = append(rules, Rule{
			Name:   launcher.Name,
			Kind:   ActionLaunchNamedActivity,
			Active: active,
			Match:  launcherMatch(launcher),
		})
	}

	rules = append(rules,
		Rule{Name: "device-info", Kind: ActionShowDeviceInfoPanel, Active: branchB, Match: literal(CodeDeviceInfo, ActionShowDeviceInfoPanel)},
		Rule{Name: "build-id", Kind: ActionShowBuildID, Active: branchB, Match: literal(CodeBuildID, ActionShowBuildID)},
	)
	return rules
}

// Catalog 返回规则目录的副本(按优先级排列)
func Catalog() []Rule {
	out := make([]Rule, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup 不执行动作,只返回第一个命中的规则
func Lookup(snapshot Snapshot, input string) (Match, bool) {
	for _, rule := range catalog {
		if rule.Active != nil && !rule.Active(snapshot) {
			continue
		}
		if match, ok := rule.Match(input); ok {
			match.Rule = rule.Name
			return match, true
		}
	}
	return Match{}, false
}
