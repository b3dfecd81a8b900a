// internal/service/mirror_service_test.go
package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mems-service/internal/model"
)

// mockController records calls and plays back scripted errors
type mockController struct {
	calls  []string
	failOn string
	status model.MirrorStatus

	troubleshootOutput string
}

func (m *mockController) call(name string) error {
	m.calls = append(m.calls, name)
	if m.failOn == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (m *mockController) Connect(ctx context.Context) error { return m.call("connect") }
func (m *mockController) IsConnected() bool                 { return true }

func (m *mockController) SetVbias(ctx context.Context, value int) error {
	return m.call("set_vbias")
}
func (m *mockController) SetVdifferenceMax(ctx context.Context, value int) error {
	return m.call("set_vdifference_max")
}
func (m *mockController) SetHardwareFilterBW(ctx context.Context, value int) error {
	return m.call("set_hardware_filter_bw")
}

func (m *mockController) HVOn(ctx context.Context) error  { return m.call("hv_on") }
func (m *mockController) HVOff(ctx context.Context) error { return m.call("hv_off") }

func (m *mockController) SetMirrorPosition(ctx context.Context, x, y float64) error {
	return m.call("set_position")
}

func (m *mockController) Troubleshoot(ctx context.Context) (string, error) {
	if err := m.call("troubleshoot"); err != nil {
		return "", err
	}
	return m.troubleshootOutput, nil
}

func (m *mockController) ExitSafely(ctx context.Context) error { return m.call("exit_safely") }

func (m *mockController) Status() model.MirrorStatus { return m.status }

// recordingSink collects published events
type recordingSink struct {
	events []model.MirrorEvent
}

func (r *recordingSink) Publish(event model.MirrorEvent) {
	r.events = append(r.events, event)
}

func (r *recordingSink) types() []model.EventType {
	types := make([]model.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}

func newTestService() (*MirrorService, *mockController, *recordingSink) {
	controller := &mockController{}
	sink := &recordingSink{}
	return NewMirrorService(controller, sink, zap.NewNop()), controller, sink
}

func TestSetParametersAppliesInDatasheetOrder(t *testing.T) {
	svc, controller, sink := newTestService()

	result, err := svc.SetParameters(context.Background(), &ParametersRequest{
		Vbias:            model.IntPtr(80),
		VdifferenceMax:   model.IntPtr(120),
		HardwareFilterBW: model.IntPtr(1000),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	assert.Equal(t, []string{"set_vbias", "set_vdifference_max", "set_hardware_filter_bw"}, controller.calls)
	assert.Equal(t, []model.EventType{model.EventParametersChanged}, sink.types())
}

func TestSetParametersSingleValue(t *testing.T) {
	svc, controller, _ := newTestService()

	_, err := svc.SetParameters(context.Background(), &ParametersRequest{
		VdifferenceMax: model.IntPtr(150),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"set_vdifference_max"}, controller.calls)
}

func TestSetParametersEmptyRequest(t *testing.T) {
	svc, controller, sink := newTestService()

	_, err := svc.SetParameters(context.Background(), &ParametersRequest{})
	require.Error(t, err)
	assert.Empty(t, controller.calls)
	assert.Empty(t, sink.events)
}

func TestSetParametersStopsOnControllerError(t *testing.T) {
	svc, controller, sink := newTestService()
	controller.failOn = "set_vdifference_max"

	_, err := svc.SetParameters(context.Background(), &ParametersRequest{
		Vbias:            model.IntPtr(80),
		VdifferenceMax:   model.IntPtr(120),
		HardwareFilterBW: model.IntPtr(1000),
	})
	require.Error(t, err)
	assert.Empty(t, sink.events, "no event without a completed change")
}

func TestSetPositionPublishesEvent(t *testing.T) {
	svc, controller, sink := newTestService()

	result, err := svc.SetPosition(context.Background(), 0.25, -0.5)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0.25, result.Data["x"])
	assert.Equal(t, -0.5, result.Data["y"])

	assert.Equal(t, []string{"set_position"}, controller.calls)
	require.Len(t, sink.events, 1)
	assert.Equal(t, model.EventPositionChanged, sink.events[0].EventType)
}

func TestPowerOnAndOff(t *testing.T) {
	svc, controller, sink := newTestService()

	resultOn, err := svc.PowerOn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.PowerStateHVOn, resultOn.Data["power_state"])

	resultOff, err := svc.PowerOff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.PowerStateHVOff, resultOff.Data["power_state"])

	assert.Equal(t, []string{"hv_on", "hv_off"}, controller.calls)
	assert.Equal(t, []model.EventType{model.EventPowerChanged, model.EventPowerChanged}, sink.types())
}

func TestPowerOnErrorPublishesNothing(t *testing.T) {
	svc, controller, sink := newTestService()
	controller.failOn = "hv_on"

	_, err := svc.PowerOn(context.Background())
	require.Error(t, err)
	assert.Empty(t, sink.events)
}

func TestTroubleshootReturnsRawOutput(t *testing.T) {
	svc, controller, _ := newTestService()
	controller.troubleshootOutput = "MTI-OK\r\n"

	result, err := svc.Troubleshoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MTI-OK\r\n", result.Data["raw_output"])
}

func TestShutdownPublishesEventEvenOnError(t *testing.T) {
	svc, controller, sink := newTestService()
	controller.failOn = "exit_safely"

	err := svc.Shutdown(context.Background())
	require.Error(t, err)

	require.Len(t, sink.events, 1)
	assert.Equal(t, model.EventShutdown, sink.events[0].EventType)
	assert.Contains(t, sink.events[0].Data, "error")
}

func TestShutdownCleanPath(t *testing.T) {
	svc, controller, sink := newTestService()

	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Equal(t, []string{"exit_safely"}, controller.calls)
	require.Len(t, sink.events, 1)
	assert.NotContains(t, sink.events[0].Data, "error")
}
