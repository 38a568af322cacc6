package api

import (
	"net/http"
	"strconv"

	"marketplace-service/internal/service"

	"github.com/gin-gonic/gin"
)

// listProduce lists active listings, or one farmer's with ?farmerId=
func (h *Handler) listProduce(c *gin.Context) {
	var farmerID int64
	if raw := c.Query("farmerId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "Invalid farmerId")
			return
		}
		farmerID = id
	}

	produce, err := h.catalog.ListProduce(c.Request.Context(), farmerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, produce)
}

func (h *Handler) getProduce(c *gin.Context) {
	id, ok := pathID(c, "produce")
	if !ok {
		return
	}

	produce, err := h.catalog.GetProduce(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, produce)
}

func (h *Handler) createProduce(c *gin.Context) {
	var req service.CreateProduceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	produce, err := h.catalog.CreateProduce(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, produce)
}

func (h *Handler) updateProduce(c *gin.Context) {
	id, ok := pathID(c, "produce")
	if !ok {
		return
	}

	var req service.UpdateProduceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	produce, err := h.catalog.UpdateProduce(c.Request.Context(), actorFrom(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, produce)
}

func (h *Handler) priceHistory(c *gin.Context) {
	id, ok := pathID(c, "produce")
	if !ok {
		return
	}

	history, err := h.catalog.PriceHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
