package handlers

import (
	"io"
	"net/http"
	"time"

	"thermostat_runtime/internal/normalizer"

	"github.com/gin-gonic/gin"
)

const (
	maxWebhookBody = 1 << 20 // 1 MB

	errMalformedEvent = "malformed event"
	errEngineBusy     = "engine busy, retry later"
)

// @Summary      Ingest thermostat events
// @Description  Accepts a vendor push envelope, a decoded poll result or a flat test payload. A JSON array or {"events":[...]} submits a batch. device_id and user_id query params act as identity hints.
// @Tags         ingress
// @Accept       json
// @Produce      json
// @Param        device_id  query  string  false  "Identity hint when the payload has none"
// @Param        user_id    query  string  false  "Owner hint"
// @Success      202  {object}  service.IngestResult
// @Failure      400  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]interface{}
// @Router       /webhook/events [post]
func (h *Handler) ingestEvents(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	payloads, err := normalizer.Decode(body)
	if err != nil {
		if h.log != nil {
			h.log.Warnw("event_malformed", "err", err, "bytes", len(body))
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errMalformedEvent})
		return
	}

	hint := normalizer.Hint{
		DeviceID:   c.Query("device_id"),
		UserID:     c.Query("user_id"),
		ReceivedAt: time.Now().UTC(),
	}
	res := h.services.Ingest.Ingest(c.Request.Context(), payloads, hint)

	switch {
	case res.Accepted == 0 && res.Rejected > 0:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errEngineBusy, "result": res})
	case res.Accepted == 0 && res.Malformed > 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": errMalformedEvent, "result": res})
	default:
		c.JSON(http.StatusAccepted, res)
	}
}
