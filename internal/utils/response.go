package utils

import "github.com/gofiber/fiber/v2"

// correlationHeader mirrors middleware.CorrelationHeader; utils sits below
// middleware and cannot import it.
const correlationHeader = "X-Correlation-ID"

// APIResponse is the envelope of every non-document response.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
}

// SendSuccess replies 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus replies with data and the given status, 200 when
// status is zero.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	return send(c, status, APIResponse{Success: true, Data: data, Message: orDefault(message, "success")})
}

// SendError replies with status and a message, never with data.
func SendError(c *fiber.Ctx, status int, message string) error {
	return send(c, status, APIResponse{Message: orDefault(message, "error")})
}

// SendFailure replies with status and data describing the failure.
func SendFailure(c *fiber.Ctx, status int, message string, data interface{}) error {
	return send(c, status, APIResponse{Data: data, Message: orDefault(message, "error")})
}

func send(c *fiber.Ctx, status int, payload APIResponse) error {
	payload.RequestID = c.GetRespHeader(correlationHeader)
	return c.Status(status).JSON(payload)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
