package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/zerocost/portal/internal/checkout/domain"
)

type CheckoutRequest struct {
	Email  string `json:"email"`
	Plan   string `json:"plan"`
	Locale string `json:"locale"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

func (s *Server) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	session, err := s.checkoutSvc.CreateSession(c.Request.Context(), checkoutdomain.Request{
		Email:  req.Email,
		Plan:   req.Plan,
		Locale: req.Locale,
	})
	if err != nil {
		// The duplicate-plan conflict carries a localized message, so it
		// bypasses the generic error mapping.
		if errors.Is(err, checkoutdomain.ErrAlreadySubscribed) {
			c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Error: errorPayload{
				Type:    "already_subscribed",
				Message: checkoutdomain.ConflictMessage(req.Locale),
			}})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{URL: session.URL})
}
