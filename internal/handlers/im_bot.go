package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/pkg/response"
)

type IMBotHandler struct {
	imBotService *services.IMBotService
}

func NewIMBotHandler(imBotService *services.IMBotService) *IMBotHandler {
	return &IMBotHandler{imBotService: imBotService}
}

func (h *IMBotHandler) List(c *gin.Context) {
	var req services.IMBotListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.imBotService.List(&req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, resp)
}

func (h *IMBotHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	bot, err := h.imBotService.GetByID(id)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, bot)
}

func (h *IMBotHandler) Create(c *gin.Context) {
	var req services.CreateIMBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bot, err := h.imBotService.Create(&req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Created(c, bot)
}

func (h *IMBotHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateIMBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bot, err := h.imBotService.Update(id, &req)
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, bot)
}

func (h *IMBotHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.imBotService.Delete(id); err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, gin.H{"message": "bot deleted successfully"})
}

func (h *IMBotHandler) GetAllActive(c *gin.Context) {
	bots, err := h.imBotService.GetAllActive()
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	response.Success(c, bots)
}
