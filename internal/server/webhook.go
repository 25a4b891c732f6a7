package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StripeWebhook hands the raw body and signature header to the
// reconciler. The response code is the acknowledgement protocol: 200
// stops redelivery, 400 rejects a bad signature, 500 asks for a retry.
func (s *Server) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.billingSvc.IngestWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
