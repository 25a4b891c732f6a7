package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type RegisterRequest struct {
	Email string `json:"email"`
}

type RegisterResponse struct {
	Key     string `json:"key"`
	Plan    string `json:"plan"`
	Created bool   `json:"created"`
}

func (s *Server) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.registrationSvc.Register(c.Request.Context(), req.Email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, RegisterResponse{
		Key:     result.ZCKey,
		Plan:    string(result.Plan),
		Created: result.Created,
	})
}
