package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/session"
)

func sessionStatus(err error) int {
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) handleNewSession(c *gin.Context) {
	var req struct {
		Name    string `json:"name"`
		ModelID string `json:"model_id"`
	}
	// Body is optional; a bare POST creates a default session.
	_ = c.ShouldBindJSON(&req)

	sess := s.sessions.Create(session.CreateOptions{Name: req.Name, ModelID: req.ModelID})
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sess})
}

func (s *Server) handleListSessions(c *gin.Context) {
	includeEmpty, _ := strconv.ParseBool(c.Query("include_empty"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	sessions := s.sessions.List(includeEmpty, limit)
	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": sessions, "count": len(sessions)})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.sessions.Delete(id); err != nil {
		respondError(c, sessionStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": id})
}

func (s *Server) handleRenameSession(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		respondError(c, http.StatusBadRequest, "name 不能为空")
		return
	}
	if err := s.sessions.Rename(c.Param("id"), req.Name); err != nil {
		respondError(c, sessionStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "name": req.Name})
}

func (s *Server) handleSetSessionModel(c *gin.Context) {
	var req struct {
		ModelID string `json:"model_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ModelID == "" {
		respondError(c, http.StatusBadRequest, "model_id 不能为空")
		return
	}
	if _, err := s.models.Get(req.ModelID); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sessions.SetModel(c.Param("id"), req.ModelID); err != nil {
		respondError(c, sessionStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "model_id": req.ModelID})
}

func (s *Server) handleGetSessionModel(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		respondError(c, sessionStatus(err), err.Error())
		return
	}
	modelID := sess.ModelID
	if modelID == "" {
		modelID = s.models.Active()
	}
	resp := gin.H{"success": true, "model_id": modelID}
	if entry, err := s.models.Get(modelID); err == nil {
		resp["model_name"] = entry.Name
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClearSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.sessions.ClearMessages(id); err != nil {
		respondError(c, sessionStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": id})
}
