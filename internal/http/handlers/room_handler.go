// Room HTTP handlers.
//
//   - GET  /users/room                    (end-user: get-or-create own room)
//   - GET  /rooms/{id}                    (enter: detail + history, marks read)
//   - POST /rooms/{id}/read               (mark the other side's messages read)
//   - GET  /operators/rooms               (all rooms with owners)
//   - GET  /operators/rooms/unassigned
//   - GET  /operators/rooms/mine
//   - POST /operators/rooms/{id}/assign   (claim for the caller)
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/services"
)

// RoomListResponse wraps operator room lists.
type RoomListResponse struct {
	Rooms []services.RoomView `json:"rooms"`
}

// MarkReadResponse reports how many messages were marked.
type MarkReadResponse struct {
	Marked int64 `json:"marked" example:"3"`
}

// MyRoom godoc
// @ID          myRoom
// @Summary     Get or create the caller's room
// @Description Returns the end-user's single support room, creating it on first use.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.RoomView
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/room [get]
func (h *Handlers) MyRoom(c *gin.Context) {
	id, okID := caller(c)
	if !okID {
		return
	}
	v, err := h.rooms.GetOrCreateForUser(c.Request.Context(), id.ID)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	ok(c, http.StatusOK, v)
}

// EnterRoom godoc
// @ID          enterRoom
// @Summary     Enter a room
// @Description Marks the other side's messages read and returns the room with its full history.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Room ID"  minimum(1)
// @Success     200  {object}  services.RoomDetail
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{id} [get]
func (h *Handlers) EnterRoom(c *gin.Context) {
	id, okID := caller(c)
	if !okID {
		return
	}
	roomID, okRoom := roomIDParam(c)
	if !okRoom {
		return
	}
	d, err := h.rooms.Enter(c.Request.Context(), roomID, id)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	ok(c, http.StatusOK, d)
}

// MarkRead godoc
// @ID          markRead
// @Summary     Mark a room read
// @Description Stamps every unread message from the other side. Repeating the call is harmless.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Room ID"  minimum(1)
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{id}/read [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	id, okID := caller(c)
	if !okID {
		return
	}
	roomID, okRoom := roomIDParam(c)
	if !okRoom {
		return
	}
	n, err := h.rooms.MarkRead(c.Request.Context(), roomID, id)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Marked: n})
}

// ListAllRooms godoc
// @ID          listAllRooms
// @Summary     All rooms
// @Description Every room with owner, assigned operator and the count of unread end-user messages.
// @Tags        Operators
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.RoomListResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Operators only"
// @Router      /operators/rooms [get]
func (h *Handlers) ListAllRooms(c *gin.Context) {
	h.listRooms(c, func(ctx context.Context, _ domain.Identity) ([]services.RoomView, error) {
		return h.rooms.ListAllWithOwners(ctx)
	})
}

// ListUnassignedRooms godoc
// @ID          listUnassignedRooms
// @Summary     Unassigned rooms
// @Tags        Operators
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.RoomListResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Operators only"
// @Router      /operators/rooms/unassigned [get]
func (h *Handlers) ListUnassignedRooms(c *gin.Context) {
	h.listRooms(c, func(ctx context.Context, _ domain.Identity) ([]services.RoomView, error) {
		return h.rooms.ListUnassigned(ctx)
	})
}

// ListMyRooms godoc
// @ID          listMyRooms
// @Summary     Rooms assigned to the caller
// @Tags        Operators
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.RoomListResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Operators only"
// @Router      /operators/rooms/mine [get]
func (h *Handlers) ListMyRooms(c *gin.Context) {
	h.listRooms(c, func(ctx context.Context, id domain.Identity) ([]services.RoomView, error) {
		return h.rooms.ListAssignedTo(ctx, id.ID)
	})
}

func (h *Handlers) listRooms(c *gin.Context, list func(context.Context, domain.Identity) ([]services.RoomView, error)) {
	id, okID := caller(c)
	if !okID {
		return
	}
	rooms, err := list(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	if rooms == nil {
		rooms = []services.RoomView{}
	}
	ok(c, http.StatusOK, RoomListResponse{Rooms: rooms})
}

// AssignRoom godoc
// @ID          assignRoom
// @Summary     Claim a room
// @Description Assigns the room to the calling operator. Succeeds only while the room is unassigned.
// @Tags        Operators
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Room ID"  minimum(1)
// @Success     200  {object}  services.RoomView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Operators only"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already assigned"
// @Router      /operators/rooms/{id}/assign [post]
func (h *Handlers) AssignRoom(c *gin.Context) {
	id, okID := caller(c)
	if !okID {
		return
	}
	roomID, okRoom := roomIDParam(c)
	if !okRoom {
		return
	}
	v, err := h.rooms.Assign(c.Request.Context(), roomID, id.ID)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	ok(c, http.StatusOK, v)
}
