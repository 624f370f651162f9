package models

import "github.com/gofiber/fiber/v2"

// Response is the standard API envelope.
type Response struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Details []string `json:"details,omitempty"`
}

// Pagination describes the page window of a collection response.
type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalItems  int64 `json:"totalItems"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// Collection pairs a page of items with its pagination metadata.
type Collection struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination computes pagination metadata for a 1-based page of size limit.
func NewPagination(page, limit int, total int64) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  total,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1 && total > 0,
	}
}

// Respond writes a success envelope with the given status and payload.
func Respond(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Response{Success: true, Data: data})
}

// RespondCollection writes a success envelope wrapping a paginated collection.
func RespondCollection(c *fiber.Ctx, items any, page Pagination) error {
	return Respond(c, fiber.StatusOK, Collection{Items: items, Pagination: page})
}

// ExposeInternalDetails controls whether wrapped internal error causes are
// included in 500 responses. Set once at startup; must stay false in production.
var ExposeInternalDetails bool

// RespondWithError writes a standardized error envelope. The HTTP status is
// derived from the AppError code; plain errors become 500s.
func RespondWithError(c *fiber.Ctx, err error) error {
	appErr := AsAppError(err)
	resp := Response{Error: appErr.Message, Details: appErr.Details}
	if appErr.Err != nil && ExposeInternalDetails {
		resp.Details = append(resp.Details, appErr.Err.Error())
	}
	return c.Status(appErr.Status()).JSON(resp)
}
