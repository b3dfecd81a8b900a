// internal/service/mirror_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mems-service/internal/model"
	"mems-service/internal/utils"
)

// MirrorController is the device-facing surface the service drives. The
// concrete implementation is the MTI controller; tests substitute a mock.
type MirrorController interface {
	Connect(ctx context.Context) error
	IsConnected() bool

	SetVbias(ctx context.Context, value int) error
	SetVdifferenceMax(ctx context.Context, value int) error
	SetHardwareFilterBW(ctx context.Context, value int) error

	HVOn(ctx context.Context) error
	HVOff(ctx context.Context) error

	SetMirrorPosition(ctx context.Context, x, y float64) error
	Troubleshoot(ctx context.Context) (string, error)
	ExitSafely(ctx context.Context) error

	Status() model.MirrorStatus
}

// EventSink receives mirror events for fan-out to subscribers
type EventSink interface {
	Publish(event model.MirrorEvent)
}

// ParametersRequest carries calibration values to apply. Nil fields are
// left untouched, so a single parameter can be updated alone.
type ParametersRequest struct {
	Vbias            *int `json:"vbias"`
	VdifferenceMax   *int `json:"vdifference_max"`
	HardwareFilterBW *int `json:"hardware_filter_bw"`
}

// MirrorService orchestrates the single mirror controller: it sequences
// operations, stamps them with IDs for the logs, and publishes state-change
// events. The controller itself guarantees command serialization.
type MirrorService struct {
	controller MirrorController
	events     EventSink
	logger     *zap.Logger
}

// NewMirrorService creates a new mirror service
func NewMirrorService(controller MirrorController, events EventSink, logger *zap.Logger) *MirrorService {
	return &MirrorService{
		controller: controller,
		events:     events,
		logger:     logger.With(zap.String("service", "mirror")),
	}
}

// Connect signs in to the mirror driver
func (s *MirrorService) Connect(ctx context.Context) error {
	if err := s.controller.Connect(ctx); err != nil {
		s.publish(model.EventError, map[string]interface{}{"error": err.Error()})
		return err
	}

	s.publish(model.EventConnected, map[string]interface{}{
		"port": s.controller.Status().Port,
	})
	return nil
}

// Status returns a snapshot of the controller state
func (s *MirrorService) Status() model.MirrorStatus {
	return s.controller.Status()
}

// SetParameters applies the calibration values present in the request, one
// formatted command per value, in datasheet order
func (s *MirrorService) SetParameters(ctx context.Context, req *ParametersRequest) (*model.OperationResult, error) {
	operationID := uuid.New()
	opLogger := utils.NewOperationLogger(s.logger, "set_parameters", operationID.String())
	startTime := time.Now()

	if req.Vbias == nil && req.VdifferenceMax == nil && req.HardwareFilterBW == nil {
		err := fmt.Errorf("no parameters in request")
		opLogger.Error(err)
		return nil, err
	}

	if req.Vbias != nil {
		if err := s.controller.SetVbias(ctx, *req.Vbias); err != nil {
			opLogger.Error(err)
			return nil, err
		}
	}
	if req.VdifferenceMax != nil {
		if err := s.controller.SetVdifferenceMax(ctx, *req.VdifferenceMax); err != nil {
			opLogger.Error(err)
			return nil, err
		}
	}
	if req.HardwareFilterBW != nil {
		if err := s.controller.SetHardwareFilterBW(ctx, *req.HardwareFilterBW); err != nil {
			opLogger.Error(err)
			return nil, err
		}
	}

	opLogger.Success()
	s.publish(model.EventParametersChanged, map[string]interface{}{
		"parameters": s.controller.Status().Parameters,
	})

	return s.result(operationID, startTime, map[string]interface{}{
		"parameters": s.controller.Status().Parameters,
	}), nil
}

// SetPosition points the mirror at the given deflection
func (s *MirrorService) SetPosition(ctx context.Context, x, y float64) (*model.OperationResult, error) {
	operationID := uuid.New()
	opLogger := utils.NewOperationLogger(s.logger, "set_position", operationID.String())
	startTime := time.Now()

	if err := s.controller.SetMirrorPosition(ctx, x, y); err != nil {
		opLogger.Error(err)
		return nil, err
	}

	opLogger.Success(zap.Float64("x", x), zap.Float64("y", y))
	s.publish(model.EventPositionChanged, map[string]interface{}{
		"x": x,
		"y": y,
	})

	return s.result(operationID, startTime, map[string]interface{}{
		"x": x,
		"y": y,
	}), nil
}

// PowerOn energizes the high voltage stage
func (s *MirrorService) PowerOn(ctx context.Context) (*model.OperationResult, error) {
	return s.power(ctx, true)
}

// PowerOff de-energizes the high voltage stage
func (s *MirrorService) PowerOff(ctx context.Context) (*model.OperationResult, error) {
	return s.power(ctx, false)
}

func (s *MirrorService) power(ctx context.Context, on bool) (*model.OperationResult, error) {
	operationID := uuid.New()
	operationType := "hv_off"
	if on {
		operationType = "hv_on"
	}
	opLogger := utils.NewOperationLogger(s.logger, operationType, operationID.String())
	startTime := time.Now()

	var err error
	if on {
		err = s.controller.HVOn(ctx)
	} else {
		err = s.controller.HVOff(ctx)
	}
	if err != nil {
		opLogger.Error(err)
		return nil, err
	}

	state := model.PowerStateHVOff
	if on {
		state = model.PowerStateHVOn
	}

	opLogger.Success(zap.String("power_state", string(state)))
	s.publish(model.EventPowerChanged, map[string]interface{}{
		"power_state": state,
	})

	return s.result(operationID, startTime, map[string]interface{}{
		"power_state": state,
	}), nil
}

// Troubleshoot re-issues the diagnostic query and returns the raw serial
// output for manual inspection
func (s *MirrorService) Troubleshoot(ctx context.Context) (*model.OperationResult, error) {
	operationID := uuid.New()
	opLogger := utils.NewOperationLogger(s.logger, "troubleshoot", operationID.String())
	startTime := time.Now()

	output, err := s.controller.Troubleshoot(ctx)
	if err != nil {
		opLogger.Error(err)
		return nil, err
	}

	opLogger.Success()
	return s.result(operationID, startTime, map[string]interface{}{
		"raw_output": output,
	}), nil
}

// Shutdown runs the safe shutdown sequence. Best-effort: it is invoked on
// operator request and on process teardown, including after prior errors.
func (s *MirrorService) Shutdown(ctx context.Context) error {
	err := s.controller.ExitSafely(ctx)

	data := map[string]interface{}{}
	if err != nil {
		data["error"] = err.Error()
	}
	s.publish(model.EventShutdown, data)

	return err
}

// publish sends an event to the sink, if one is attached
func (s *MirrorService) publish(eventType model.EventType, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(model.NewMirrorEvent(eventType, "mirror-service", data))
}

// result builds a successful operation result
func (s *MirrorService) result(operationID uuid.UUID, startTime time.Time, data map[string]interface{}) *model.OperationResult {
	return &model.OperationResult{
		OperationID: operationID,
		Success:     true,
		Data:        data,
		Duration:    time.Since(startTime).String(),
		Timestamp:   time.Now(),
	}
}
