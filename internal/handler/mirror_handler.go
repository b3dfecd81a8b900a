// internal/handler/mirror_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mems-service/internal/discovery"
	"mems-service/internal/driver/mti"
	"mems-service/internal/service"
	"mems-service/internal/utils"
)

// MirrorHandler exposes the mirror operations over REST
type MirrorHandler struct {
	mirrorService *service.MirrorService
	scanner       *discovery.Scanner
	logger        *utils.ServiceLogger
}

// NewMirrorHandler creates a new mirror handler
func NewMirrorHandler(mirrorService *service.MirrorService, scanner *discovery.Scanner, logger *zap.Logger) *MirrorHandler {
	return &MirrorHandler{
		mirrorService: mirrorService,
		scanner:       scanner,
		logger:        utils.NewServiceLogger(logger, "mirror-handler"),
	}
}

// positionRequest carries a mirror deflection target
type positionRequest struct {
	X *float64 `json:"x" binding:"required"`
	Y *float64 `json:"y" binding:"required"`
}

// GetStatus returns a snapshot of the controller state
func (h *MirrorHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Mirror status retrieved", h.mirrorService.Status())
}

// Connect signs in to the mirror driver
func (h *MirrorHandler) Connect(c *gin.Context) {
	if err := h.mirrorService.Connect(c.Request.Context()); err != nil {
		h.respondDeviceError(c, "Failed to connect to mirror driver", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Connected to mirror driver", h.mirrorService.Status())
}

// SetParameters applies calibration parameters from the request body
func (h *MirrorHandler) SetParameters(c *gin.Context) {
	var req service.ParametersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid parameters payload", err)
		return
	}
	if req.Vbias == nil && req.VdifferenceMax == nil && req.HardwareFilterBW == nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "No parameters in request", nil)
		return
	}

	result, err := h.mirrorService.SetParameters(c.Request.Context(), &req)
	if err != nil {
		h.respondDeviceError(c, "Failed to set mirror parameters", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Mirror parameters updated", result)
}

// SetPosition points the mirror at the requested deflection
func (h *MirrorHandler) SetPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid position payload", err)
		return
	}

	result, err := h.mirrorService.SetPosition(c.Request.Context(), *req.X, *req.Y)
	if err != nil {
		h.respondDeviceError(c, "Failed to set mirror position", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Mirror position updated", result)
}

// PowerOn energizes the high voltage stage
func (h *MirrorHandler) PowerOn(c *gin.Context) {
	result, err := h.mirrorService.PowerOn(c.Request.Context())
	if err != nil {
		h.respondDeviceError(c, "Failed to enable high voltage", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "High voltage enabled", result)
}

// PowerOff de-energizes the high voltage stage
func (h *MirrorHandler) PowerOff(c *gin.Context) {
	result, err := h.mirrorService.PowerOff(c.Request.Context())
	if err != nil {
		h.respondDeviceError(c, "Failed to disable high voltage", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "High voltage disabled", result)
}

// Troubleshoot returns the raw diagnostic output from the driver
func (h *MirrorHandler) Troubleshoot(c *gin.Context) {
	result, err := h.mirrorService.Troubleshoot(c.Request.Context())
	if err != nil {
		h.respondDeviceError(c, "Failed to run diagnostics", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Diagnostics completed", result)
}

// Shutdown runs the safe shutdown sequence and releases the port
func (h *MirrorHandler) Shutdown(c *gin.Context) {
	if err := h.mirrorService.Shutdown(c.Request.Context()); err != nil {
		h.respondDeviceError(c, "Safe shutdown completed with errors", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Mirror shut down safely", nil)
}

// ListPorts enumerates serial ports that may carry a mirror driver
func (h *MirrorHandler) ListPorts(c *gin.Context) {
	ports, err := h.scanner.ListPorts()
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan serial ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Serial ports retrieved", gin.H{
		"ports": ports,
		"count": len(ports),
	})
}

// respondDeviceError maps controller errors to HTTP statuses
func (h *MirrorHandler) respondDeviceError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, mti.ErrValueOutOfRange):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, mti.ErrHVActive), errors.Is(err, mti.ErrParamsNotSet):
		status = http.StatusConflict
	case errors.Is(err, mti.ErrNoDevice):
		status = http.StatusServiceUnavailable
	case errors.Is(err, mti.ErrUnexpectedReply):
		status = http.StatusBadGateway
	}

	h.logger.Error(message, zap.Int("status", status), zap.Error(err))
	utils.ErrorResponse(c, status, message, err)
}
