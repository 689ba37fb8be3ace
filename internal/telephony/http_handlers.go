package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"voiceconfirm/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ReconcileFunc applies a delivery event to the matching call record.
// Returns matched=false when no record carries the external call id.
type ReconcileFunc func(ctx context.Context, externalCallID string, ev DeliveryEvent) (matched bool, err error)

// WebhookHandler serves the provider-facing endpoints: the status callback,
// the TwiML document, and the staged audio.
//
// NOTE: these endpoints should be protected by Twilio signature validation in
// production.
type WebhookHandler struct {
	Reconcile     ReconcileFunc
	Audio         *AudioStore
	PublicBaseURL string
}

// HandleStatusCallback ingests delivery-status events.
// At-least-once delivery: an unknown call id is acked with 200 so the
// provider does not retry-storm us; only genuine processing failures are 500.
func (h WebhookHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseStatusCallback(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form payload"})
		return
	}
	if form.CallSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid is required"})
		return
	}

	matched, err := h.Reconcile(c.Request.Context(), form.CallSid, form.ToDeliveryEvent())
	if err != nil {
		log.Error("status callback processing failed", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	if !matched {
		log.Warn("status callback for unknown call", "call_sid", form.CallSid)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "matched": matched})
}

// HandleTwiml returns the call instructions: play the staged audio.
func (h WebhookHandler) HandleTwiml(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	audioURL := fmt.Sprintf("%s/webhooks/twilio/audio/%s", h.PublicBaseURL, callID)
	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response><Play>%s</Play></Response>`, audioURL)

	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

// HandleAudio serves staged MP3 audio to the provider.
func (h WebhookHandler) HandleAudio(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	audio, err := h.Audio.Get(c.Request.Context(), callID)
	if err != nil {
		if errors.Is(err, ErrAudioNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		logger.FromGin(c).Error("audio fetch failed", "call_id", callID, "err", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Data(http.StatusOK, "audio/mpeg", audio)
}
