// internal/handler/mirror_handler_test.go
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mems-service/internal/discovery"
	"mems-service/internal/driver/mti"
	"mems-service/internal/model"
	"mems-service/internal/service"
)

// stubController satisfies service.MirrorController with canned behavior
type stubController struct {
	status model.MirrorStatus
	err    error
}

func (s *stubController) Connect(ctx context.Context) error     { return s.err }
func (s *stubController) IsConnected() bool                     { return s.status.Connected }
func (s *stubController) SetVbias(ctx context.Context, v int) error { return s.err }
func (s *stubController) SetVdifferenceMax(ctx context.Context, v int) error {
	return s.err
}
func (s *stubController) SetHardwareFilterBW(ctx context.Context, v int) error {
	return s.err
}
func (s *stubController) HVOn(ctx context.Context) error  { return s.err }
func (s *stubController) HVOff(ctx context.Context) error { return s.err }
func (s *stubController) SetMirrorPosition(ctx context.Context, x, y float64) error {
	return s.err
}
func (s *stubController) Troubleshoot(ctx context.Context) (string, error) {
	return "MTI-OK", s.err
}
func (s *stubController) ExitSafely(ctx context.Context) error { return s.err }
func (s *stubController) Status() model.MirrorStatus           { return s.status }

func newTestRouter(ctrl *stubController) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	mirrorService := service.NewMirrorService(ctrl, nil, logger)
	h := NewMirrorHandler(mirrorService, discovery.NewScanner(logger), logger)

	router := gin.New()
	router.GET("/mirror", h.GetStatus)
	router.PUT("/mirror/parameters", h.SetParameters)
	router.PUT("/mirror/position", h.SetPosition)
	router.POST("/mirror/power/on", h.PowerOn)
	router.POST("/mirror/troubleshoot", h.Troubleshoot)
	return router
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestGetStatusReturnsSnapshot(t *testing.T) {
	ctrl := &stubController{status: model.MirrorStatus{
		Connected:  true,
		PowerState: model.PowerStateHVOff,
		Port:       "/dev/ttyUSB0",
	}}

	recorder := performJSON(t, newTestRouter(ctrl), http.MethodGet, "/mirror", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response struct {
		Success bool `json:"success"`
		Data    struct {
			Connected bool   `json:"connected"`
			Port      string `json:"port"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.True(t, response.Data.Connected)
	assert.Equal(t, "/dev/ttyUSB0", response.Data.Port)
}

func TestSetParametersRejectsMalformedBody(t *testing.T) {
	recorder := performJSON(t, newTestRouter(&stubController{}), http.MethodPut, "/mirror/parameters", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSetParametersMapsRangeErrorTo422(t *testing.T) {
	ctrl := &stubController{err: mti.ErrValueOutOfRange}
	recorder := performJSON(t, newTestRouter(ctrl), http.MethodPut, "/mirror/parameters", gin.H{
		"vbias": 999,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
}

func TestSetParametersMapsHVGuardTo409(t *testing.T) {
	ctrl := &stubController{err: mti.ErrHVActive}
	recorder := performJSON(t, newTestRouter(ctrl), http.MethodPut, "/mirror/parameters", gin.H{
		"vbias": 80,
	})
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestSetPositionRequiresBothCoordinates(t *testing.T) {
	recorder := performJSON(t, newTestRouter(&stubController{}), http.MethodPut, "/mirror/position", gin.H{
		"x": 0.5,
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSetPositionAcceptsZeroCoordinates(t *testing.T) {
	// 0 is a valid deflection; pointer binding must not treat it as missing
	recorder := performJSON(t, newTestRouter(&stubController{}), http.MethodPut, "/mirror/position", gin.H{
		"x": 0.0,
		"y": 0.0,
	})
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestPowerOnMapsMissingParamsTo409(t *testing.T) {
	ctrl := &stubController{err: mti.ErrParamsNotSet}
	recorder := performJSON(t, newTestRouter(ctrl), http.MethodPost, "/mirror/power/on", nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestPowerOnMapsNoDeviceTo503(t *testing.T) {
	ctrl := &stubController{err: mti.ErrNoDevice}
	recorder := performJSON(t, newTestRouter(ctrl), http.MethodPost, "/mirror/power/on", nil)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestTroubleshootReturnsRawOutput(t *testing.T) {
	recorder := performJSON(t, newTestRouter(&stubController{}), http.MethodPost, "/mirror/troubleshoot", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "MTI-OK", response.Data.Data["raw_output"])
}
