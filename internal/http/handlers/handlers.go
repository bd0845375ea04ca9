// Package handlers implements the REST surface of the support relay.
//
// Handlers are transport-thin: they parse path/query/body, take the caller's
// identity from the auth middleware, delegate to the services, and translate
// service errors with writeServiceError.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/http/middleware"
	"github.com/tbourn/support-relay/internal/services"
	"github.com/tbourn/support-relay/internal/utils"
)

//
// Service contracts
//

// AuthService provisions accounts and issues credentials.
type AuthService interface {
	LoginUser(ctx context.Context, email string) (*services.LoginResult, error)
	LoginOperator(ctx context.Context, email string) (*services.LoginResult, error)
	CurrentUser(ctx context.Context, id domain.Identity) (*domain.User, error)
	CurrentOperator(ctx context.Context, id domain.Identity) (*domain.Operator, error)
}

// RoomService coordinates rooms, assignment and read state.
type RoomService interface {
	GetOrCreateForUser(ctx context.Context, userID int64) (*services.RoomView, error)
	CanAccess(ctx context.Context, roomID int64, id domain.Identity) (bool, error)
	Enter(ctx context.Context, roomID int64, id domain.Identity) (*services.RoomDetail, error)
	MarkRead(ctx context.Context, roomID int64, reader domain.Identity) (int64, error)
	Assign(ctx context.Context, roomID, operatorID int64) (*services.RoomView, error)
	ListUnassigned(ctx context.Context) ([]services.RoomView, error)
	ListAssignedTo(ctx context.Context, operatorID int64) ([]services.RoomView, error)
	ListAllWithOwners(ctx context.Context) ([]services.RoomView, error)
}

// MessageService is the message pipeline plus history reads.
type MessageService interface {
	SendOnce(ctx context.Context, roomID int64, sender domain.Identity, content, key string) (*domain.Message, bool, error)
	ListPage(ctx context.Context, roomID int64, page, pageSize int) ([]domain.Message, int64, error)
	Stats(ctx context.Context, roomID int64) (services.HistoryStats, error)
}

// Handlers groups the REST endpoints.
type Handlers struct {
	auth  AuthService
	rooms RoomService
	msgs  MessageService

	// MaxContentRunes is echoed in "content too long" errors.
	MaxContentRunes int
}

// New constructs Handlers bound to the given services.
func New(auth AuthService, rooms RoomService, msgs MessageService) *Handlers {
	return &Handlers{auth: auth, rooms: rooms, msgs: msgs, MaxContentRunes: services.DefaultMaxContentRunes}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"        example:"1"`
	PageSize   int   `json:"page_size"   example:"20"`
	Total      int64 `json:"total"       example:"42"`
	TotalPages int   `json:"total_pages" example:"3"`
	HasNext    bool  `json:"has_next"    example:"true"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages, HasNext: page < pages}
}

// clampPagination reads page/page_size, defaulting to 1/20 and capping size at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}

// roomIDParam parses :id, answering 400 when it is not a positive integer.
func roomIDParam(c *gin.Context) (int64, bool) {
	id, ok := utils.PositiveID(c.Param("id"))
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a positive integer")
		return 0, false
	}
	return id, true
}

// caller returns the authenticated identity. Routes are always mounted
// behind middleware.Authenticate; the 401 is a guard against miswiring.
func caller(c *gin.Context) (domain.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer credential")
	}
	return id, ok
}

// requireAccess answers 403/404 unless id may use roomID.
func (h *Handlers) requireAccess(c *gin.Context, roomID int64, id domain.Identity) bool {
	allowed, err := h.rooms.CanAccess(c.Request.Context(), roomID, id)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return false
	}
	if !allowed {
		writeServiceError(c, services.ErrForbidden, h.MaxContentRunes)
		return false
	}
	return true
}
