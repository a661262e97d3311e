package users

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/technotes/internal/web"
)

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type updateUserRequest struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Active   *bool    `json:"active"`
	Password string   `json:"password"`
}

type deleteUserRequest struct {
	ID string `json:"id"`
}

// Handler は /users の HTTP ハンドラーをまとめた構造体です。
type Handler struct {
	svc *Service
}

// NewHandler は Handler を作成します。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register は /users のルートを登録します。
func (h *Handler) Register(group gin.IRoutes) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.PATCH("", h.Update)
	group.DELETE("", h.Delete)
}

// List は GET /users のハンドラーです。
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}
	if len(list) == 0 {
		web.Abort(c, http.StatusBadRequest, web.CodeNotFound, "No users found")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create は POST /users のハンドラーです。
func (h *Handler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, ErrMissingFields)
		return
	}

	user, err := h.svc.Create(c.Request.Context(), CreateInput{
		Username: req.Username,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	web.Message(c, http.StatusOK, fmt.Sprintf("New user %s created", user.Username))
}

// Update は PATCH /users のハンドラーです。
func (h *Handler) Update(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, ErrMissingFields)
		return
	}

	user, err := h.svc.Update(c.Request.Context(), UpdateInput{
		ID:       req.ID,
		Username: req.Username,
		Roles:    req.Roles,
		Active:   req.Active,
		Password: req.Password,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	web.Message(c, http.StatusOK, fmt.Sprintf("%s updated", user.Username))
}

// Delete は DELETE /users のハンドラーです。成功時は JSON 文字列を返します。
func (h *Handler) Delete(c *gin.Context) {
	var req deleteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, ErrMissingID)
		return
	}

	user, err := h.svc.Delete(c.Request.Context(), req.ID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, fmt.Sprintf("Username %s with id %s deleted", user.Username, user.ID))
}

func respondWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrMissingFields):
		web.Abort(c, http.StatusBadRequest, web.CodeInvalidInput, "All fields are required")
	case errors.Is(err, ErrMissingID):
		web.Abort(c, http.StatusBadRequest, web.CodeInvalidInput, "User ID required")
	case errors.Is(err, ErrDuplicateUsername):
		web.Abort(c, http.StatusConflict, web.CodeConflict, "Duplicate username")
	case errors.Is(err, ErrHasNotes):
		web.Abort(c, http.StatusBadRequest, web.CodeConflict, "User has assigned notes")
	case errors.Is(err, ErrNotFound):
		// 存在しない ID は 404 ではなく 400 として扱う
		web.Abort(c, http.StatusBadRequest, web.CodeNotFound, "User not found")
	default:
		web.Fail(c, err)
	}
}
