package modem

const (
	CMD_RESET            = "AT&F\r"
	CMD_ECHO_OFF         = "ATE0\r"
	CMD_VERBOSE_ERRORS   = "AT+CMEE=2\r"
	CMD_GET_IMSI         = "AT+CIMI\r"
	CMD_GET_IMEI         = "AT+CGSN\r"
	CMD_GET_MEID         = "AT^MEID\r"
	CMD_GET_REVISION     = "AT+CGMR\r"
	CMD_SET_CHARSET      = "AT+CSCS=\"UCS2\"\r"
	CMD_SET_CHARSET_GSM  = "AT+CSCS=\"GSM\"\r"
	CMD_SELECT_PHONEBOOK = "AT+CPBS=\"%s\"\r"
	CMD_QUERY_PHONEBOOK  = "AT+CPBS?\r"
	CMD_READ_PHONEBOOK   = "AT+CPBR=%d,%d\r"
	CMD_CHANGE_PASSWORD  = "AT+CPWD=\"%s\",\"%s\",\"%s\"\r"
	CMD_ENTER_PUK        = "AT+CPIN=\"%s\",\"%s\"\r"
	CMD_READ_NV          = "AT$QCNV=%d\r"
)
