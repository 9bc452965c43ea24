package modem

import (
	"context"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestParsePinMmi(t *testing.T) {
	mmi, err := ParsePinMmi("**04*1234*5678*5678#")
	be.Err(t, err, nil)
	be.Equal(t, mmi, PinMmi{Kind: PinChange, Old: "1234", New: "5678"})
	be.Equal(t, mmi.Command(), `AT+CPWD="SC","1234","5678"`+"\r")

	mmi, err = ParsePinMmi("**042*1234*56789*56789#")
	be.Err(t, err, nil)
	be.Equal(t, mmi.Kind, Pin2Change)
	be.Equal(t, mmi.Command(), `AT+CPWD="P2","1234","56789"`+"\r")

	mmi, err = ParsePinMmi("**05*12345678*4321*4321#")
	be.Err(t, err, nil)
	be.Equal(t, mmi.Kind, PinUnblock)
	be.Equal(t, mmi.Command(), `AT+CPIN="12345678","4321"`+"\r")
}

func TestParsePinMmiRejects(t *testing.T) {
	tests := []struct {
		dial string
		want error
	}{
		{"*#06#", ErrNotPinMmi},
		{"**04*1234*5678#", ErrNotPinMmi},
		{"**21*1234*5678*5678#", ErrNotPinMmi},
		{"**04*1234*5678*8765#", ErrPinMismatch},
		{"**04*1234*567*567#", ErrInvalidPin},
		{"**04*12*5678*5678#", ErrInvalidPin},
		{"**05*1234*5678*5678#", ErrInvalidPin},
		{"**04*1234*56a8*56a8#", ErrInvalidPin},
	}
	for _, tt := range tests {
		_, err := ParsePinMmi(tt.dial)
		be.Err(t, err, tt.want)
	}
}

func TestExecutePinMmi(t *testing.T) {
	m, port := newTestModem(map[string]string{
		`AT+CPWD="SC","1234","5678"`: "OK\r\n",
	})

	mmi, err := ParsePinMmi("**04*1234*5678*5678#")
	be.Err(t, err, nil)
	be.Err(t, m.ExecutePinMmi(context.Background(), mmi), nil)
	be.Equal(t, port.commands(), []string{`AT+CPWD="SC","1234","5678"`})
}

func TestExecutePinMmiRejectedHidesPin(t *testing.T) {
	m, _ := newTestModem(map[string]string{
		`AT+CPWD="SC","1234","5678"`: "+CME ERROR: incorrect password\r\n",
	})

	mmi, err := ParsePinMmi("**04*1234*5678*5678#")
	be.Err(t, err, nil)

	err = m.ExecutePinMmi(context.Background(), mmi)
	be.Err(t, err, ErrCommandFailed)
	be.True(t, strings.Contains(err.Error(), "incorrect password"))
	be.True(t, !strings.Contains(err.Error(), "1234"))
	be.True(t, !strings.Contains(err.Error(), "5678"))
}
