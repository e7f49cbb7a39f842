package server

import (
	"net/http"
	"strings"

	planoverridedomain "github.com/careplix/opdwallet/internal/planoverride/domain"
	"github.com/gin-gonic/gin"
)

type putPlanVersionOverrideRequest struct {
	PlanVersion *int `json:"plan_version"`
}

func (s *Server) PutPlanVersionOverride(c *gin.Context) {
	var req putPlanVersionOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.overrideSvc.Set(c.Request.Context(), planoverridedomain.SetOverrideRequest{
		PolicyID:    strings.TrimSpace(c.Param("policy_id")),
		PlanVersion: req.PlanVersion,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"plan_version": req.PlanVersion}})
}

func (s *Server) GetPlanVersionOverride(c *gin.Context) {
	planVersion, err := s.overrideSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("policy_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"plan_version": planVersion}})
}

func (s *Server) ClearPlanVersionOverride(c *gin.Context) {
	err := s.overrideSvc.Set(c.Request.Context(), planoverridedomain.SetOverrideRequest{
		PolicyID: strings.TrimSpace(c.Param("policy_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"plan_version": nil}})
}
