// Message HTTP handlers.
//
//   - POST /rooms/{id}/messages   (send through the message pipeline)
//   - GET  /rooms/{id}/messages   (paginated history, newest first, ETag)
//
// Idempotency: a POST carrying an Idempotency-Key that the same caller
// already used in the same room returns the stored message with
// `Idempotency-Replayed: true` and status 200 instead of 201.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-relay/internal/domain"
	"github.com/tbourn/support-relay/internal/http/middleware"
)

// HeaderReplayed marks a response served from an idempotency record.
const HeaderReplayed = "Idempotency-Replayed"

// PostMessageRequest is the JSON payload for sending a message. Content is
// normalized (line endings, blank-line runs, surrounding space) before the
// emptiness and length checks.
type PostMessageRequest struct {
	Content string `json:"content" binding:"required" example:"Hi, my order never arrived."`
}

// PostMessageResponse wraps the stored message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse is one page of history.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Persists the message, updates the room summary and relays it to every live subscriber.
// @Description Supports idempotent retries via the Idempotency-Key header.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    int     true   "Room ID"  minimum(1)
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
// @Success     201  {object}  handlers.PostMessageResponse  "Stored"
// @Success     200  {object}  handlers.PostMessageResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse        "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse        "Room not found"
// @Failure     429  {object}  handlers.ErrorResponse        "Rate limited"
// @Router      /rooms/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	id, okID := caller(c)
	if !okID {
		return
	}
	roomID, okRoom := roomIDParam(c)
	if !okRoom {
		return
	}
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	m, replayed, err := h.msgs.SendOnce(c.Request.Context(), roomID, id, req.Content, key)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	if replayed {
		c.Header(HeaderReplayed, "true")
		ok(c, http.StatusOK, PostMessageResponse{Message: m})
		return
	}
	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a room
// @Description Newest first. Responds 304 when If-None-Match matches the current ETag.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   int  true   "Room ID"         minimum(1)
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	id, okID := caller(c)
	if !okID {
		return
	}
	roomID, okRoom := roomIDParam(c)
	if !okRoom {
		return
	}
	if !h.requireAccess(c, roomID, id) {
		return
	}
	page, pageSize := clampPagination(c)

	// ETag is best effort; a stats failure just skips it.
	if st, err := h.msgs.Stats(c.Request.Context(), roomID); err == nil {
		var ts int64
		if st.Latest != nil {
			ts = st.Latest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"room:%d:%d:%d:%d:%d:%d"`, roomID, st.Count, ts, st.Unread, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.msgs.ListPage(c.Request.Context(), roomID, page, pageSize)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: newPagination(page, pageSize, total)})
}
