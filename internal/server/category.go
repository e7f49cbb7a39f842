package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.categories.All()})
}

func (s *Server) GetCategoryByID(c *gin.Context) {
	category, err := s.categories.Resolve(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": category})
}
