package rest

import (
	"net/http"
	"strconv"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay/broker"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type StatusResponse struct {
	Status *broker.Status
}

func (ra *RESTAPI) handleGETStatus(c *gin.Context) {
	c.JSON(http.StatusOK, &StatusResponse{
		Status: ra.broker.Status(),
	})
}

type BasicResponse struct {
	Message string
	Error   bool
}

func sendBasicResponse(c *gin.Context, err error, successMessage string) {
	status := http.StatusOK
	var resp interface{}

	if err != nil {
		resp = &BasicResponse{
			Error:   true,
			Message: err.Error(),
		}
		status = http.StatusInternalServerError
	} else {
		resp = &BasicResponse{
			Message: successMessage,
		}
	}

	c.JSON(status, resp)
}

func (ra *RESTAPI) handlePOSTDisconnectSlot(c *gin.Context) {
	slotStr, _ := c.GetPostForm("slot")
	if slotStr == "" {
		sendBasicResponse(c, errors.New("slot not provided"), "")
		return
	}

	slot, err := strconv.Atoi(slotStr)
	if err != nil {
		sendBasicResponse(c, errors.WithMessage(err, "parse-slot"), "")
		return
	}

	err = ra.broker.DisconnectSlot(slot)
	sendBasicResponse(c, err, "disconnected the worker on slot "+slotStr)
}
