package config

import (
	"testing"
	"time"

	"github.com/nalgeon/be"
)

func TestParseDefaults(t *testing.T) {
	config, err := Parse([]byte("App:\n  Addr: \":9000\"\n"))
	be.Err(t, err, nil)

	be.Equal(t, config.App.Addr, ":9000")
	be.Equal(t, config.App.RequestTimeout, DefaultRequestTimeout)
	be.Equal(t, config.App.Locale, DefaultLocale)
	be.Equal(t, config.Dialer.BaselineVersion, DefaultBaselineVersion)
	be.Equal(t, config.Dialer.BasebandMaxLen, DefaultBasebandMaxLen)
	be.Equal(t, config.Intents.BroadcastTopic, DefaultBroadcastTopic)
	be.Equal(t, config.Intents.DLQTopic, DefaultBroadcastTopic+DefaultDLQTopicSuffix)
	be.Equal(t, config.Receiver.Channel, DefaultReceiverChannel)
	be.Equal(t, config.Receiver.EngineerMode, DefaultEngineerMode)
	be.Equal(t, config.Storage.Namespace, DefaultRedisNamespace)
	be.Equal(t, config.Storage.FeedTTL, DefaultFeedTTL)
}

func TestParseModemSlots(t *testing.T) {
	content := `
Modem:
  Enabled: true
  Slots:
    - PortName: /dev/ttyUSB2
      CommandTimeout: 3s
    - PortName: /dev/ttyUSB5
      BaudRate: 9600
Dialer:
  DefaultVoiceSlot: 1
`
	config, err := Parse([]byte(content))
	be.Err(t, err, nil)

	be.Equal(t, len(config.Modem.Slots), 2)
	be.Equal(t, config.Modem.Slots[0].BaudRate, DefaultModemBaudRate)
	be.Equal(t, config.Modem.Slots[0].CommandTimeout, 3*time.Second)
	be.Equal(t, config.Modem.Slots[0].PhonebookStorage, DefaultPhonebookStorage)
	be.Equal(t, config.Modem.Slots[1].BaudRate, 9600)
	be.Equal(t, config.Dialer.DefaultVoiceSlot, 1)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no slots":       "Modem:\n  Enabled: true\n",
		"slot range":     "Modem:\n  Enabled: true\n  Slots:\n    - PortName: a\nDialer:\n  DefaultVoiceSlot: 2\n",
		"component form": "Dialer:\n  InstalledPackages: [com.example.tool]\n",
		"yaml":           "App: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			be.True(t, err != nil)
		})
	}
}

func TestFlags(t *testing.T) {
	flags := NewFlags(Dialer{DiagPortEnabled: true})
	be.True(t, flags.DiagPortEnabled())
	be.True(t, !flags.SecretCodeEnabled())

	flags.SetSecretCodeEnabled(true)
	flags.SetDiagPortEnabled(false)
	be.True(t, flags.SecretCodeEnabled())
	be.True(t, !flags.DiagPortEnabled())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvSecretCodeEnabled, "on")
	t.Setenv(EnvDiagPortEnabled, "maybe")
	t.Setenv(EnvConfigPath, " /etc/dialcode.yaml ")

	config := Config{Dialer: Dialer{DiagPortEnabled: true}}
	config.ApplyEnvOverrides()

	be.True(t, config.Dialer.SecretCodeEnabled)
	be.True(t, config.Dialer.DiagPortEnabled)
	be.True(t, !config.Dialer.TouchCalEnabled)
	be.Equal(t, ResolvePath("etc/app.yaml"), "/etc/dialcode.yaml")
}
