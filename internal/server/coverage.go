package server

import (
	"net/http"
	"strconv"
	"strings"

	coveragedomain "github.com/careplix/opdwallet/internal/coverage/domain"
	"github.com/careplix/opdwallet/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

type coverageDescriptorRequest struct {
	Covered         bool   `json:"covered"`
	AnnualLimit     *int64 `json:"annual_limit"`
	PerVisitLimit   *int64 `json:"per_visit_limit"`
	RequiresPreAuth bool   `json:"requires_pre_auth"`
}

type putCoverageVersionRequest struct {
	Entries map[string]coverageDescriptorRequest `json:"entries"`
}

func (s *Server) PutCoverageVersion(c *gin.Context) {
	policyID := strings.TrimSpace(c.Param("policy_id"))
	planVersion, err := strconv.Atoi(strings.TrimSpace(c.Param("plan_version")))
	if err != nil {
		AbortWithError(c, newValidationError("plan_version", "invalid_plan_version", "invalid plan version"))
		return
	}

	var req putCoverageVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entries := make(map[string]coveragedomain.CoverageDescriptor, len(req.Entries))
	for categoryID, descriptor := range req.Entries {
		entries[categoryID] = coveragedomain.CoverageDescriptor{
			Covered:         descriptor.Covered,
			AnnualLimit:     descriptor.AnnualLimit,
			PerVisitLimit:   descriptor.PerVisitLimit,
			RequiresPreAuth: descriptor.RequiresPreAuth,
		}
	}

	resp, err := s.coverageSvc.PutVersion(c.Request.Context(), coveragedomain.PutVersionRequest{
		PolicyID:    policyID,
		PlanVersion: planVersion,
		Entries:     entries,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCoverageVersion(c *gin.Context) {
	policyID := strings.TrimSpace(c.Param("policy_id"))
	planVersion, err := strconv.Atoi(strings.TrimSpace(c.Param("plan_version")))
	if err != nil {
		AbortWithError(c, newValidationError("plan_version", "invalid_plan_version", "invalid plan version"))
		return
	}

	resp, err := s.coverageSvc.GetVersion(c.Request.Context(), coveragedomain.GetVersionRequest{
		PolicyID:    policyID,
		PlanVersion: planVersion,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCoverageVersions(c *gin.Context) {
	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.coverageSvc.ListVersions(c.Request.Context(), coveragedomain.ListVersionsRequest{
		PolicyID:  strings.TrimSpace(c.Param("policy_id")),
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type resolveCoverageRequest struct {
	PolicyID   string `json:"policy_id"`
	CategoryID string `json:"category_id"`
	AsOf       string `json:"as_of"`
}

func (s *Server) ResolveCoverage(c *gin.Context) {
	var req resolveCoverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	asOf := s.clock.Now()
	if parsed, err := parseOptionalTime(req.AsOf, false); err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_as_of", "invalid as_of"))
		return
	} else if parsed != nil {
		asOf = *parsed
	}

	resp, err := s.coverageSvc.Resolve(c.Request.Context(), coveragedomain.ResolveRequest{
		PolicyID:   strings.TrimSpace(req.PolicyID),
		CategoryID: strings.TrimSpace(req.CategoryID),
		AsOf:       asOf,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
