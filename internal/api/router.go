package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Vihanga22365/governance-analysis/internal/governance"
	"github.com/Vihanga22365/governance-analysis/pkg/broadcast"
	"github.com/Vihanga22365/governance-analysis/pkg/domain"
	"github.com/Vihanga22365/governance-analysis/pkg/telemetry"
	"github.com/Vihanga22365/governance-analysis/pkg/workflow"
)

// Route identifiers used for rate limiting and metrics.
const (
	RouteCommitteeClarifications   = "committee_clarifications"
	RouteCommitteeStatus           = "committee_status"
	RouteCostClarifications        = "cost_clarifications"
	RouteEnvironmentClarifications = "environment_clarifications"
	RouteSnapshot                  = "snapshot"
	RouteRefresh                   = "refresh"
	RouteChatHistory               = "chat_history"
)

// Workflow is the set of governance operations served over HTTP.
type Workflow interface {
	UpdateCommitteeClarifications(ctx context.Context, governanceID string, committee domain.Committee, items []domain.ClarificationItem) (*workflow.Result, error)
	UpdateCommitteeStatus(ctx context.Context, governanceID string, items []domain.CommitteeStatusItem) (*workflow.Result, error)
	UpdateCostClarifications(ctx context.Context, governanceID string, items []domain.ClarificationItem) (*workflow.Result, error)
	UpdateEnvironmentClarifications(ctx context.Context, governanceID string, items []domain.ClarificationItem) (*workflow.Result, error)
	Snapshot(ctx context.Context, governanceID, section, subSection string) (domain.CleanSnapshot, error)
	Refresh(ctx context.Context, governanceID, section, subSection string) (workflow.Notification, error)
	PublishChatHistory(ctx context.Context, governanceID string) (workflow.Notification, error)
}

// HubStats reports the publisher loop state.
type HubStats interface {
	Stats(ctx context.Context) broadcast.Stats
}

// Deps collects the collaborators of the router. Metrics, Limiter and Subscribers
// are optional.
type Deps struct {
	Workflow    Workflow
	Hub         HubStats
	Metrics     *telemetry.Metrics
	Limiter     *governance.RateLimiter
	Subscribers http.Handler
	ServiceName string
	Logger      *slog.Logger
}

type server struct {
	workflow Workflow
	hub      HubStats
	logger   *slog.Logger
}

// NewRouter builds the gin engine serving the operator API.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := deps.ServiceName
	if name == "" {
		name = "governance-hub"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(name))
	if deps.Metrics != nil {
		router.Use(metricsMiddleware(deps.Metrics))
	}

	s := &server{workflow: deps.Workflow, hub: deps.Hub, logger: logger.With("component", "api")}
	limit := func(route string) gin.HandlerFunc { return rateLimit(deps.Limiter, route) }

	router.GET("/health", s.health)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Subscribers != nil {
		router.GET("/ws", gin.WrapH(deps.Subscribers))
	}

	v1 := router.Group("/v1/governance/:id")
	{
		v1.PUT("/committees/:committee/clarifications", limit(RouteCommitteeClarifications), s.updateCommitteeClarifications)
		v1.PUT("/committees/status", limit(RouteCommitteeStatus), s.updateCommitteeStatus)
		v1.PUT("/cost-clarifications", limit(RouteCostClarifications), s.updateCostClarifications)
		v1.PUT("/environment-clarifications", limit(RouteEnvironmentClarifications), s.updateEnvironmentClarifications)
		v1.GET("/snapshot", limit(RouteSnapshot), s.snapshot)
		v1.POST("/refresh", limit(RouteRefresh), s.refresh)
		v1.POST("/chat-history/publish", limit(RouteChatHistory), s.publishChatHistory)
	}

	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	return router
}

type clarificationsRequest struct {
	Clarifications []domain.ClarificationItem `json:"clarifications" binding:"required"`
}

type committeeStatusRequest struct {
	Statuses []domain.CommitteeStatusItem `json:"statuses" binding:"required"`
}

type healthResponse struct {
	Status    string          `json:"status"`
	Publisher broadcast.Stats `json:"publisher"`
}

func (s *server) health(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	stats := s.hub.Stats(c.Request.Context())
	if !stats.Running {
		c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "degraded", Publisher: stats})
		return
	}
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Publisher: stats})
}

func (s *server) updateCommitteeClarifications(c *gin.Context) {
	var req clarificationsRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.workflow.UpdateCommitteeClarifications(c.Request.Context(), c.Param("id"), domain.Committee(c.Param("committee")), req.Clarifications)
	s.respond(c, res, err)
}

func (s *server) updateCommitteeStatus(c *gin.Context) {
	var req committeeStatusRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.workflow.UpdateCommitteeStatus(c.Request.Context(), c.Param("id"), req.Statuses)
	s.respond(c, res, err)
}

func (s *server) updateCostClarifications(c *gin.Context) {
	var req clarificationsRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.workflow.UpdateCostClarifications(c.Request.Context(), c.Param("id"), req.Clarifications)
	s.respond(c, res, err)
}

func (s *server) updateEnvironmentClarifications(c *gin.Context) {
	var req clarificationsRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.workflow.UpdateEnvironmentClarifications(c.Request.Context(), c.Param("id"), req.Clarifications)
	s.respond(c, res, err)
}

func (s *server) snapshot(c *gin.Context) {
	snap, err := s.workflow.Snapshot(c.Request.Context(), c.Param("id"), c.Query("section"), c.Query("sub_section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *server) refresh(c *gin.Context) {
	n, err := s.workflow.Refresh(c.Request.Context(), c.Param("id"), c.Query("section"), c.Query("sub_section"))
	s.respondNotification(c, n, err)
}

func (s *server) publishChatHistory(c *gin.Context) {
	n, err := s.workflow.PublishChatHistory(c.Request.Context(), c.Param("id"))
	s.respondNotification(c, n, err)
}

func (s *server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.fail(c, err)
		return false
	}
	return true
}

func (s *server) respond(c *gin.Context, res *workflow.Result, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.Response == nil {
		res.Response = json.RawMessage("null")
	}
	c.JSON(http.StatusOK, res)
}

// respondNotification answers 202 when the broadcast was scheduled and 200 with the
// failure reason otherwise.
func (s *server) respondNotification(c *gin.Context, n workflow.Notification, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	if n.Scheduled {
		c.JSON(http.StatusAccepted, n)
		return
	}
	c.JSON(http.StatusOK, n)
}
