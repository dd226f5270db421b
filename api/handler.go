// Copyright (c) Augur Authors.
// Licensed under the MIT License.

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mirrorlake/augur/report"
	"github.com/mirrorlake/augur/research"
	"github.com/mirrorlake/augur/types"
	"github.com/mirrorlake/augur/workflow"
)

// =============================================================================
// 🔬 研究运行 Handler
// =============================================================================

// RunService 是 Handler 对运行管理器的依赖。*workflow.Manager 实现了它。
type RunService interface {
	StartRun(ctx context.Context, subject research.Subject) (string, error)
	Status(runID string) (research.RunStatus, error)
	GetFinalState(ctx context.Context, runID string) (*workflow.RunResult, error)
}

// Handler 研究运行端点处理器
type Handler struct {
	service RunService
	logger  *zap.Logger
}

// NewHandler 创建研究运行处理器
func NewHandler(service RunService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// startResponse 发起运行的响应体
type startResponse struct {
	RunID  string             `json:"run_id"`
	Status research.RunStatus `json:"status"`
}

// runResponse 查询运行的响应体。非终态时 Snapshot 和 Report 为空。
type runResponse struct {
	RunID    string             `json:"run_id"`
	Status   research.RunStatus `json:"status"`
	Snapshot *research.Snapshot `json:"snapshot,omitempty"`
	Report   *report.Document   `json:"report,omitempty"`
}

// HandleStartRun 发起一次研究运行
// @Router /api/research [post]
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var subject research.Subject
	if err := DecodeJSONBody(w, r, &subject, h.logger); err != nil {
		return
	}

	runID, err := h.service.StartRun(r.Context(), subject)
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	h.logger.Info("research run started",
		zap.String("run_id", runID),
		zap.String("company", subject.Company),
	)
	WriteSuccess(w, http.StatusAccepted, startResponse{RunID: runID, Status: research.RunRunning})
}

// HandleGetRun 查询一次运行。终态时返回完整快照与报告，
// 运行中只返回当前状态。
// @Router /api/research/{id} [get]
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("id"))
	if runID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "run id is required"), h.logger)
		return
	}

	result, err := h.service.GetFinalState(r.Context(), runID)
	if err != nil {
		var apiErr *types.Error
		if errors.As(err, &apiErr) && apiErr.Code == types.ErrRunNotTerminal {
			status, statusErr := h.service.Status(runID)
			if statusErr != nil {
				WriteError(w, asAPIError(statusErr), h.logger)
				return
			}
			WriteSuccess(w, http.StatusOK, runResponse{RunID: runID, Status: status})
			return
		}
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	WriteSuccess(w, http.StatusOK, runResponse{
		RunID:    runID,
		Status:   result.Snapshot.Status,
		Snapshot: result.Snapshot,
		Report:   &result.Report,
	})
}

// HandleHealthz 健康检查
// @Router /healthz [get]
func (h *Handler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
