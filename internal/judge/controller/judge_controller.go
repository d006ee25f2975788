package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"judgecore/internal/judge/model"
	"judgecore/pkg/utils/response"
)

// StatusReader returns the freshest status of a submission.
type StatusReader interface {
	Get(ctx context.Context, submissionID string) (model.JudgeStatus, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JudgeController handles judge status and health requests.
type JudgeController struct {
	status StatusReader
	deps   map[string]Pinger
}

// NewJudgeController creates a new controller. deps are probed by Health.
func NewJudgeController(status StatusReader, deps map[string]Pinger) *JudgeController {
	return &JudgeController{status: status, deps: deps}
}

// Register mounts the controller routes.
func (h *JudgeController) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	api := r.Group("/api/v1/judge")
	api.GET("/submissions/:id", h.GetStatus)
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.status.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Health probes every dependency and reports 503 when any is down.
func (h *JudgeController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.deps))
	healthy := true
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"healthy": healthy, "checks": checks})
}
