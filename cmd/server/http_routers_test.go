package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nalgeon/be"

	"dialcode-gateway/internal/config"
	"dialcode-gateway/internal/intent"
	"dialcode-gateway/internal/surface"
)

const testConfig = `
App:
  Locale: en
  RequestTimeout: 2s
Dialer:
  BuildInnerVersion: PWV-TEST
Receiver:
  Enabled: true
`

type testResponse struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

func newTestServer(t *testing.T) (*AppContext, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	configuration, err := config.Parse([]byte(testConfig))
	be.Err(t, err, nil)

	app := InitAppContext(configuration)
	consumers := startSecretCodeConsumer(app)
	t.Cleanup(func() {
		consumers.Stop()
		app.Close()
	})
	return app, BuildGinRouter(app)
}

func call(t *testing.T, router *gin.Engine, method, path string, body any) (int, testResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		be.Err(t, err, nil)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	var response testResponse
	be.Err(t, json.Unmarshal(recorder.Body.Bytes(), &response), nil)
	return recorder.Code, response
}

func createSession(t *testing.T, router *gin.Engine) string {
	t.Helper()
	status, response := call(t, router, http.MethodPost, "/api/dialpad/sessions", CreateSessionRequest{Locale: "en"})
	be.Equal(t, status, http.StatusOK)

	var created CreateSessionResponse
	be.Err(t, json.Unmarshal(response.Data, &created), nil)
	be.True(t, created.ID != "")
	return created.ID
}

func TestInputShowsBuildID(t *testing.T) {
	_, router := newTestServer(t)
	id := createSession(t, router)

	status, response := call(t, router, http.MethodPost, "/api/dialpad/sessions/"+id+"/input", InputRequest{Text: "*#317"})
	be.Equal(t, status, http.StatusOK)

	var input InputResponse
	be.Err(t, json.Unmarshal(response.Data, &input), nil)
	be.True(t, input.Handled)
	be.Equal(t, input.Text, "")

	status, response = call(t, router, http.MethodGet, "/api/dialpad/sessions/"+id+"/events?after=0", nil)
	be.Equal(t, status, http.StatusOK)

	var events EventsResponse
	be.Err(t, json.Unmarshal(response.Data, &events), nil)
	be.Equal(t, len(events.Events), 2)
	be.Equal(t, events.Events[0].Type, surface.EventDialog)
	be.Equal(t, events.Events[0].Title, "PWV build id")
	be.Equal(t, events.Events[0].Message, "PWV-TEST")
	be.Equal(t, events.Next, events.Events[1].Seq)
}

func TestInputWithoutTelephonyIsNotHandled(t *testing.T) {
	_, router := newTestServer(t)
	id := createSession(t, router)

	_, response := call(t, router, http.MethodPost, "/api/dialpad/sessions/"+id+"/input", InputRequest{Text: "*#06#"})

	var input InputResponse
	be.Err(t, json.Unmarshal(response.Data, &input), nil)
	be.True(t, !input.Handled)
	be.Equal(t, input.Text, "*#06#")
}

func TestSecretCodeReachesReceiver(t *testing.T) {
	app, router := newTestServer(t)
	id := createSession(t, router)
	be.True(t, !app.Flags.DiagPortEnabled())

	_, response := call(t, router, http.MethodPost, "/api/dialpad/sessions/"+id+"/input", InputRequest{Text: "*#*#76278#*#*"})
	var input InputResponse
	be.Err(t, json.Unmarshal(response.Data, &input), nil)
	be.True(t, input.Handled)

	deadline := time.Now().Add(2 * time.Second)
	for app.Receiver.Stats().Handled == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	be.True(t, app.Flags.DiagPortEnabled())
	be.Equal(t, app.Receiver.Stats().Handled, int64(1))

	messages := app.Recorder.Messages()
	be.Equal(t, len(messages), 1)
	be.Equal(t, messages[0].Topic, config.DefaultBroadcastTopic)
	be.Equal(t, messages[0].Intent.Action, intent.ActionSecretCode)
}

func TestUpdateFlags(t *testing.T) {
	_, router := newTestServer(t)

	enabled := true
	status, response := call(t, router, http.MethodPut, "/api/flags", FlagsRequest{SecretCode: &enabled})
	be.Equal(t, status, http.StatusOK)

	var flags FlagsResponse
	be.Err(t, json.Unmarshal(response.Data, &flags), nil)
	be.Equal(t, flags, FlagsResponse{SecretCode: true})

	// A 分支打开后 *#317 不再识别
	id := createSession(t, router)
	_, response = call(t, router, http.MethodPost, "/api/dialpad/sessions/"+id+"/input", InputRequest{Text: "*#317"})
	var input InputResponse
	be.Err(t, json.Unmarshal(response.Data, &input), nil)
	be.True(t, !input.Handled)
}

func TestIntentFill(t *testing.T) {
	_, router := newTestServer(t)
	id := createSession(t, router)

	status, response := call(t, router, http.MethodPost, "/api/dialpad/sessions/"+id+"/intent", IntentRequest{URI: "tel:*#317"})
	be.Equal(t, status, http.StatusOK)
	be.Equal(t, string(response.Data), `{"number":"*#317"}`)

	_, response = call(t, router, http.MethodPost, "/api/dialpad/sessions/"+id+"/input", InputRequest{Text: "*#317"})
	var input InputResponse
	be.Err(t, json.Unmarshal(response.Data, &input), nil)
	be.True(t, !input.Handled)
}

func TestUnknownSession(t *testing.T) {
	_, router := newTestServer(t)

	status, response := call(t, router, http.MethodPost, "/api/dialpad/sessions/missing/input", InputRequest{Text: "*#317"})
	be.Equal(t, status, http.StatusNotFound)
	be.Equal(t, response.Code, http.StatusNotFound)

	status, _ = call(t, router, http.MethodDelete, "/api/dialpad/sessions/missing", nil)
	be.Equal(t, status, http.StatusNotFound)
}

func TestCancelUnknownHandle(t *testing.T) {
	_, router := newTestServer(t)
	id := createSession(t, router)

	status, _ := call(t, router, http.MethodPost, "/api/dialpad/sessions/"+id+"/cancel", HandleRequest{Handle: "nope"})
	be.Equal(t, status, http.StatusNotFound)

	status, _ = call(t, router, http.MethodPost, "/api/dialpad/sessions/"+id+"/cancel", map[string]string{})
	be.Equal(t, status, http.StatusBadRequest)
}

func TestModemStatusDisabled(t *testing.T) {
	_, router := newTestServer(t)

	status, response := call(t, router, http.MethodGet, "/api/modem/status", nil)
	be.Equal(t, status, http.StatusOK)

	var modems ModemStatusResponse
	be.Err(t, json.Unmarshal(response.Data, &modems), nil)
	be.True(t, !modems.Enabled)
	be.Equal(t, len(modems.Slots), 0)
}
