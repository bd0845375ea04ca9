// Account HTTP handlers.
//
//   - POST /users/login       (provision-or-find end-user, issue token)
//   - POST /operators/login   (provision-or-find operator, issue token)
//   - GET  /users/me
//   - GET  /operators/me
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LoginRequest is the JSON payload for both login endpoints.
type LoginRequest struct {
	Email string `json:"email" binding:"required" example:"customer@example.com"`
}

// LoginUser godoc
// @ID          loginUser
// @Summary     Log in as an end-user
// @Description Finds or creates the end-user for the e-mail and returns a signed bearer token.
// @Tags        Accounts
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Login payload"
// @Success     200   {object}  services.LoginResult
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/login [post]
func (h *Handlers) LoginUser(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email required")
		return
	}
	res, err := h.auth.LoginUser(c.Request.Context(), req.Email)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	ok(c, http.StatusOK, res)
}

// LoginOperator godoc
// @ID          loginOperator
// @Summary     Log in as an operator
// @Description Finds or creates the operator for the e-mail and returns a signed bearer token.
// @Tags        Accounts
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Login payload"
// @Success     200   {object}  services.LoginResult
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /operators/login [post]
func (h *Handlers) LoginOperator(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email required")
		return
	}
	res, err := h.auth.LoginOperator(c.Request.Context(), req.Email)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	ok(c, http.StatusOK, res)
}

// CurrentUser godoc
// @ID          currentUser
// @Summary     Current end-user
// @Tags        Accounts
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/me [get]
func (h *Handlers) CurrentUser(c *gin.Context) {
	id, okID := caller(c)
	if !okID {
		return
	}
	u, err := h.auth.CurrentUser(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	ok(c, http.StatusOK, u)
}

// CurrentOperator godoc
// @ID          currentOperator
// @Summary     Current operator
// @Tags        Accounts
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.Operator
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse  "Operator not found"
// @Router      /operators/me [get]
func (h *Handlers) CurrentOperator(c *gin.Context) {
	id, okID := caller(c)
	if !okID {
		return
	}
	op, err := h.auth.CurrentOperator(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, h.MaxContentRunes)
		return
	}
	ok(c, http.StatusOK, op)
}
