package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/users"
	requestTimeout    = 3 * time.Second
)

type UserService interface {
	CreateUser(ctx context.Context, in service.CreateUserInput) (user.User, error)
	UpdateUser(ctx context.Context, in service.UpdateUserInput) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUsers(ctx context.Context, page, itemsPerPage int) (int, []user.User, error)
	DeleteUser(ctx context.Context, id string) error
	Login(ctx context.Context, email, password string) (service.Session, error)
	Refresh(ctx context.Context, raw string) (service.Session, error)
	Logout(ctx context.Context, raw string) error
}

type UsersHandler struct {
	svc          UserService
	secureCookie bool
}

func NewUsersHandler(svc UserService, secureCookie bool) *UsersHandler {
	return &UsersHandler{svc: svc, secureCookie: secureCookie}
}

type CreateUserRequest struct {
	Name     string  `json:"name" binding:"required,min=2,max=32"`
	Email    string  `json:"email" binding:"required,email,max=64"`
	Password string  `json:"password" binding:"required,min=8,max=32"`
	Memo     *string `json:"memo" binding:"omitempty,max=255"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=2,max=32"`
	Password *string `json:"password" binding:"omitempty,min=8,max=32"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=64"`
	Password string `json:"password" binding:"required,max=32"`
}

type ListUsersResponse struct {
	TotalCount   int         `json:"totalCount"`
	Page         int         `json:"page"`
	ItemsPerPage int         `json:"itemsPerPage"`
	Users        []user.User `json:"users"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

func (h *UsersHandler) CreateUser(ctx *gin.Context) {
	var req CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	u, err := h.svc.CreateUser(cctx, service.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Memo:     req.Memo,
	})
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, u)
}

func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	u, err := h.svc.UpdateUser(cctx, service.UpdateUserInput{
		ID:       id,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) Me(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	u, err := h.svc.GetUser(cctx, id)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	page, ok := queryInt(ctx, "page", user.DefaultPage)
	if !ok {
		return
	}

	itemsPerPage, ok := queryInt(ctx, "items_per_page", user.DefaultItemsPerPage)
	if !ok {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	total, users, err := h.svc.GetUsers(cctx, page, itemsPerPage)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	p := user.NewPage(page, itemsPerPage)

	resp := ListUsersResponse{
		TotalCount:   total,
		Page:         p.Number,
		ItemsPerPage: p.ItemsPerPage,
		Users:        users,
	}

	respondWithETag(ctx, listETag(resp), resp)
}

func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.DeleteUser(cctx, id); err != nil {
		RespondServiceError(ctx, err)
		return
	}

	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

func (h *UsersHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	sess, err := h.svc.Login(cctx, req.Email, req.Password)
	if err != nil {
		if user.KindOf(err) == user.KindUnauthorized {
			RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}
		RespondServiceError(ctx, err)
		return
	}

	h.setRefreshCookie(ctx, sess.RefreshToken, sess.RefreshExpiresAt)

	ctx.JSON(http.StatusOK, tokenResponse{AccessToken: sess.AccessToken, TokenType: "Bearer"})
}

func (h *UsersHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)

	if err != nil || raw == "" {
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	sess, err := h.svc.Refresh(cctx, raw)
	if err != nil {
		if user.KindOf(err) == user.KindUnauthorized {
			h.clearRefreshCookie(ctx)
			RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
			return
		}
		RespondServiceError(ctx, err)
		return
	}

	h.setRefreshCookie(ctx, sess.RefreshToken, sess.RefreshExpiresAt)

	ctx.JSON(http.StatusOK, tokenResponse{AccessToken: sess.AccessToken, TokenType: "Bearer"})
}

// Logout always answers 204 and clears the cookie, even when the token is
// unknown or already revoked.
func (h *UsersHandler) Logout(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)

	if err == nil && raw != "" {
		cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
		defer cancel()

		if err := h.svc.Logout(cctx, raw); err != nil {
			RespondServiceError(ctx, err)
			return
		}
	}

	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// Helper functions

func queryInt(ctx *gin.Context, key string, fallback int) (int, bool) {
	raw := ctx.Query(key)
	if raw == "" {
		return fallback, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		RespondBadRequest(ctx, "Invalid query parameter", gin.H{
			"fields": []FieldError{{Field: key, Rule: "int", Message: "must be an integer"}},
		})
		return 0, false
	}

	return n, true
}

func (h *UsersHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		refreshCookieName,
		raw,
		maxAge,
		refreshCookiePath,
		"",
		h.secureCookie,
		true, // HttpOnly.
	)
}

func (h *UsersHandler) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", h.secureCookie, true)
}
