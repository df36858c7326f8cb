package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"models":       s.models.List(),
		"active_model": s.models.Active(),
	})
}

func (s *Server) handleGetModel(c *gin.Context) {
	entry, err := s.models.Get(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "model": entry})
}
