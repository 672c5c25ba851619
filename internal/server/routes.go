package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dexcon/dexc/internal/broker"
	"github.com/dexcon/dexc/internal/contract"
	"github.com/dexcon/dexc/internal/negotiation"
)

type negotiationRequest struct {
	Recipient string           `json:"recipient" binding:"required"`
	Contract  contract.Request `json:"contract"`
	Resources []string         `json:"resources"`
	Policy    string           `json:"policy"`
}

type registrationRequest struct {
	Assignments []assignment `json:"assignments"`
}

type assignment struct {
	Artifact string `json:"artifact"`
	Endpoint string `json:"endpoint"`
}

// RegisterRoutes binds health, metrics, the exchange endpoint, and the
// admin triggers.
func (s *Connector) RegisterRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"connector": s.ID,
			"title":     s.Title,
			"uptime":    time.Since(s.Appeared).String(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.handler.Routes(s.router)

	s.router.POST("/admin/negotiations", s.startNegotiation)
	s.router.POST("/admin/registrations", s.runRegistration)
	s.router.DELETE("/admin/registrations", s.runUnregistration)
}

func (s *Connector) startNegotiation(c *gin.Context) {
	var req negotiationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy := negotiation.DownloadPolicy(req.Policy)
	switch policy {
	case negotiation.PolicyAlways, negotiation.PolicyNever, negotiation.PolicyConnectorDecides:
	case "":
		policy = negotiation.PolicyConnectorDecides
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown download policy"})
		return
	}

	outcome := s.orch.Negotiate(c.Request.Context(), negotiation.Params{
		Recipient: req.Recipient,
		Request:   req.Contract,
		Resources: req.Resources,
		Policy:    policy,
	})

	status := http.StatusOK
	if outcome.Status == negotiation.StatusFailed {
		status = http.StatusBadGateway
	}
	c.JSON(status, outcomeView(outcome))
}

func (s *Connector) runRegistration(c *gin.Context) {
	assignments, ok := s.bindAssignments(c)
	if !ok {
		return
	}
	done := s.registry.RegisterAll(c.Request.Context(), assignments)
	status := http.StatusOK
	if !done {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"registered": done, "assignments": len(assignments)})
}

func (s *Connector) runUnregistration(c *gin.Context) {
	assignments, ok := s.bindAssignments(c)
	if !ok {
		return
	}
	done := s.registry.UnregisterAll(c.Request.Context(), assignments)
	status := http.StatusOK
	if !done {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"unregistered": done, "assignments": len(assignments)})
}

// bindAssignments reads the request body, falling back to the full catalog
// against every configured broker when no explicit assignments are given.
func (s *Connector) bindAssignments(c *gin.Context) ([]broker.Assignment, bool) {
	var req registrationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
	}

	var out []broker.Assignment
	for _, a := range req.Assignments {
		out = append(out, broker.Assignment{Artifact: a.Artifact, Endpoint: a.Endpoint})
	}
	if len(out) == 0 {
		for _, endpoint := range s.brokers {
			for _, res := range s.catalog.List() {
				for _, art := range res.Artifacts {
					out = append(out, broker.Assignment{Artifact: art.ID, Endpoint: endpoint})
				}
			}
		}
	}
	if len(out) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no assignments and no brokers configured"})
		return nil, false
	}
	return out, true
}

func outcomeView(o negotiation.Outcome) gin.H {
	view := gin.H{
		"status":            string(o.Status),
		"state":             string(o.State),
		"agreement_id":      o.AgreementID,
		"linked_artifacts":  o.LinkedArtifacts,
		"skipped_resources": o.SkippedResources,
		"skipped_artifacts": o.SkippedArtifacts,
	}
	if o.Failure != nil {
		view["failure"] = gin.H{
			"kind":   string(o.Failure.Kind),
			"reason": string(o.Failure.Reason),
			"detail": o.Failure.Detail,
		}
	}
	if o.Err != nil {
		view["error"] = o.Err.Error()
	}
	return view
}
