package dialcode

// 界面字符串 id,由 i18n 包提供各语言文本
const (
	StrIMEI                = "imei"
	StrMEID                = "meid"
	StrDeviceID            = "device_id"
	StrDeviceVersion       = "device_version"
	StrHardwareVersion     = "hardware_version"
	StrSoftwareVersion     = "software_version"
	StrArmVersion          = "arm_version"
	StrQcnVersion          = "qcn_version"
	StrBaseline            = "baseline"
	StrBuildID             = "pwv_build_id"
	StrErrorTitle          = "alert_title_error"
	StrFactoryTestMissing  = "factory_test_noexist_error"
	StrMaxToolMissing      = "max_tool_noexist_error"
	StrCheckTriggerMissing = "check_trigger_noexist_error"
	StrSimContactsTitle    = "simContacts_title"
	StrSimContactsLoading  = "simContacts_emptyLoading"
	// StrCallNumber 格式串,参数为联系人姓名
	StrCallNumber = "menu_callNumber"
)

// StringIDs 全部字符串 id,i18n 用来校验目录完整
func StringIDs() []string {
	return []string{
		StrIMEI, StrMEID, StrDeviceID,
		StrDeviceVersion, StrHardwareVersion, StrSoftwareVersion, StrArmVersion, StrQcnVersion, StrBaseline,
		StrBuildID,
		StrErrorTitle, StrFactoryTestMissing, StrMaxToolMissing, StrCheckTriggerMissing,
		StrSimContactsTitle, StrSimContactsLoading, StrCallNumber,
	}
}

func (host Host) text(id string, args ...any) string {
	if host.Strings == nil {
		return id
	}
	return host.Strings.Text(id, args...)
}
