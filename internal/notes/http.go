package notes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/technotes/internal/web"
)

type createNoteRequest struct {
	User  string `json:"user"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type updateNoteRequest struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Completed *bool  `json:"completed"`
}

type deleteNoteRequest struct {
	ID string `json:"id"`
}

// Handler は /notes の HTTP ハンドラーをまとめた構造体です。
type Handler struct {
	svc *Service
}

// NewHandler は Handler を作成します。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register は /notes のルートを登録します。
func (h *Handler) Register(group gin.IRoutes) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.PATCH("", h.Update)
	group.DELETE("", h.Delete)
}

// List は GET /notes のハンドラーです。
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}
	if len(list) == 0 {
		web.Abort(c, http.StatusBadRequest, web.CodeNotFound, "No notes found")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create は POST /notes のハンドラーです。
func (h *Handler) Create(c *gin.Context) {
	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, ErrMissingFields)
		return
	}

	if _, err := h.svc.Create(c.Request.Context(), CreateInput{
		User:  req.User,
		Title: req.Title,
		Text:  req.Text,
	}); err != nil {
		respondWithError(c, err)
		return
	}

	web.Message(c, http.StatusCreated, "New note created")
}

// Update は PATCH /notes のハンドラーです。
func (h *Handler) Update(c *gin.Context) {
	var req updateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, ErrMissingFields)
		return
	}

	note, err := h.svc.Update(c.Request.Context(), UpdateInput{
		ID:        req.ID,
		User:      req.User,
		Title:     req.Title,
		Text:      req.Text,
		Completed: req.Completed,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	web.Message(c, http.StatusOK, fmt.Sprintf("'%s' updated", note.Title))
}

// Delete は DELETE /notes のハンドラーです。
func (h *Handler) Delete(c *gin.Context) {
	var req deleteNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, ErrMissingID)
		return
	}

	note, err := h.svc.Delete(c.Request.Context(), req.ID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, fmt.Sprintf("Note '%s' with ID %s deleted", note.Title, note.ID))
}

func respondWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrMissingFields):
		web.Abort(c, http.StatusBadRequest, web.CodeInvalidInput, "All fields are required")
	case errors.Is(err, ErrMissingID):
		web.Abort(c, http.StatusBadRequest, web.CodeInvalidInput, "Note ID required")
	case errors.Is(err, ErrDuplicateTitle):
		web.Abort(c, http.StatusConflict, web.CodeConflict, "Duplicate note title")
	case errors.Is(err, ErrUnknownUser):
		web.Abort(c, http.StatusBadRequest, web.CodeNotFound, "User not found")
	case errors.Is(err, ErrNotFound):
		web.Abort(c, http.StatusBadRequest, web.CodeNotFound, "Note not found")
	default:
		web.Fail(c, err)
	}
}
