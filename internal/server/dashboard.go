package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type KeyInfoResponse struct {
	Email  string `json:"email"`
	Key    string `json:"key"`
	Plan   string `json:"plan"`
	Status string `json:"status"`
}

type UsageResponse struct {
	RequestsThisMonth int64      `json:"requests_this_month"`
	Limit             *int64     `json:"limit"`
	ResetAt           *time.Time `json:"reset_at"`
}

type ProviderKeyResponse struct {
	Provider     string    `json:"provider"`
	MaskedKey    string    `json:"masked_key"`
	RegisteredAt time.Time `json:"registered_at"`
}

type AddProviderRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

func (s *Server) KeyInfo(c *gin.Context) {
	email, userID := callerIdentity(c)

	info, err := s.accountSvc.KeyInfo(c.Request.Context(), email, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, KeyInfoResponse{
		Email:  info.Email,
		Key:    info.ZCKey,
		Plan:   string(info.Plan),
		Status: string(info.Status),
	})
}

func (s *Server) Usage(c *gin.Context) {
	email, _ := callerIdentity(c)

	usage, err := s.accountSvc.Usage(c.Request.Context(), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, UsageResponse{
		RequestsThisMonth: usage.RequestsThisMonth,
		Limit:             usage.Limit,
		ResetAt:           usage.ResetAt,
	})
}

func (s *Server) ListProviders(c *gin.Context) {
	email, _ := callerIdentity(c)

	keys, err := s.accountSvc.Providers(c.Request.Context(), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]ProviderKeyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, ProviderKeyResponse{
			Provider:     key.Provider,
			MaskedKey:    key.MaskedKey,
			RegisteredAt: key.RegisteredAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) AddProvider(c *gin.Context) {
	var req AddProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	email, _ := callerIdentity(c)
	if err := s.accountSvc.AddProvider(c.Request.Context(), email, req.Provider, req.APIKey); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RemoveProvider(c *gin.Context) {
	email, _ := callerIdentity(c)

	if err := s.accountSvc.RemoveProvider(c.Request.Context(), email, c.Param("provider")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
