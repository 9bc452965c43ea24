package modem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

func probeReplies() map[string]string {
	return map[string]string{
		"AT&F":      "OK\r\n",
		"ATE0":      "OK\r\n",
		"AT+CMEE=2": "OK\r\n",
		"AT+CIMI":   "460031234567890\r\n\r\nOK\r\n",
		"AT+CGSN":   "+CGSN: 861234567890123\r\n\r\nOK\r\n",
		"AT^MEID":   "^MEID: A1000049B2C3D4\r\n\r\nOK\r\n",
		"AT+CGMR":   "+CGMR: MPSS.JO.2.0\r\n\r\nOK\r\n",
		"AT$QCNV=1": "$QCNV: \"HW-V2\"\r\n\r\nOK\r\n",
	}
}

func TestLazyManagerBecomesReady(t *testing.T) {
	port := newFakePort(probeReplies())
	manager := NewLazyModemManagerWithOpener(testConfig(), func(config ModemConfig) (*Modem, error) {
		return NewModemWithPort(port, config), nil
	})
	defer manager.Close()

	be.Equal(t, manager.RadioType(), RadioNone)

	ready := make(chan struct{})
	manager.OnReady(func() { close(ready) })
	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatal("modem never became ready")
	}

	be.True(t, manager.IsAvailable())
	be.True(t, manager.IsReady())
	be.Equal(t, manager.RadioType(), RadioCDMA)
	be.Equal(t, manager.Identity().MEID, "A1000049B2C3D4")

	status := manager.Status()
	be.Equal(t, status.Radio, "CDMA")
	be.Equal(t, status.Identity.IMEI, "861234567890123")

	v, err := manager.ReadNV(context.Background(), 1)
	be.Err(t, err, nil)
	be.Equal(t, v, "HW-V2")

	// 已就绪时直接回调
	again := make(chan struct{})
	manager.OnReady(func() { close(again) })
	select {
	case <-again:
	case <-time.After(time.Second):
		t.Fatal("OnReady after ready did not fire")
	}
}

func TestLazyManagerOpenFailure(t *testing.T) {
	manager := NewLazyModemManagerWithOpener(testConfig(), func(ModemConfig) (*Modem, error) {
		return nil, errors.New("no such port")
	})
	defer manager.Close()

	waitFor(t, func() bool { return manager.GetLastError() != nil })

	be.True(t, !manager.IsAvailable())
	be.Equal(t, manager.RadioType(), RadioNone)
	_, err := manager.ReadPhonebook(context.Background())
	be.Err(t, err, ErrModemUnavailable)
}
