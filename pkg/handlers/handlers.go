package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pantrylink/schedule-api-go/pkg/auth"
	"github.com/pantrylink/schedule-api-go/pkg/database"
	"github.com/pantrylink/schedule-api-go/pkg/models"
	"github.com/pantrylink/schedule-api-go/pkg/schedule"
)

// Handler contains dependencies for the route handlers
type Handler struct {
	DB      *gorm.DB
	Service *schedule.Service
}

// AuthMiddleware verifies the JWT token and checks that it belongs to
// the pantry addressed by the :id route parameter. Settings and
// schedule writes are admin-only and pantry-scoped.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Strip "Bearer " if present
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		claims, err := auth.VerifyToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		if id, ok := pantryParam(c); ok && id != claims.PantryID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Token does not match pantry"})
			c.Abort()
			return
		}

		c.Set("pantryID", claims.PantryID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

func pantryParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var validation *schedule.ValidationError
	var conflict *schedule.ConflictError
	var notFound *schedule.NotFoundError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Reason})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":       conflict.Error(),
			"pantry_name": conflict.PantryName,
			"pantry_id":   conflict.PantryID,
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CreatePantry registers a new pantry tenant with default schedule
// settings.
func (h *Handler) CreatePantry(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Username    string `json:"username"`
		Password    string `json:"password"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phone_number"`
		Address     string `json:"address"`
		Website     string `json:"website"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and password are required"})
		return
	}
	if req.Username == "" {
		req.Username = req.Email
	}
	if req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username or email is required"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not hash password"})
		return
	}

	pantry := database.Pantry{
		Name:         req.Name,
		Username:     req.Username,
		PasswordHash: hash,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		Address:      req.Address,
		Website:      req.Website,
	}
	if err := h.Service.CreatePantry(&pantry); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": pantry.ID})
}

// Login handles pantry admin login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var pantry database.Pantry
	if err := h.DB.Where("username = ?", req.Username).First(&pantry).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !auth.CheckPasswordHash(req.Password, pantry.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.CreateToken(pantry.ID, pantry.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"pantry_id":    pantry.ID,
	})
}

// GetPantry returns a pantry's public profile.
func (h *Handler) GetPantry(c *gin.Context) {
	id, ok := pantryParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pantry id"})
		return
	}
	pantry, err := h.Service.GetPantry(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pantry)
}

// GetSchedule returns the schedule for one date, materializing the
// pantry's default template when nothing is stored yet.
func (h *Handler) GetSchedule(c *gin.Context) {
	id, ok := pantryParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pantry id"})
		return
	}
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
		return
	}

	doc, err := h.Service.GetSchedule(id, date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "schedule": doc})
}

// SaveSchedule replaces the schedule document for one date. The body's
// schedule field accepts both the current object shape and the legacy
// bare shift array.
func (h *Handler) SaveSchedule(c *gin.Context) {
	id, ok := pantryParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pantry id"})
		return
	}
	date := c.Param("date")

	var req struct {
		Schedule models.ScheduleDocument `json:"schedule"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.Service.SaveSchedule(id, date, req.Schedule)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "schedule": saved})
}

// GetScheduleSettings returns a pantry's scheduling policy.
func (h *Handler) GetScheduleSettings(c *gin.Context) {
	id, ok := pantryParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pantry id"})
		return
	}
	settings, err := h.Service.GetSettings(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// SaveScheduleSettings replaces a pantry's scheduling policy. Template
// edits only affect dates that have not been saved yet.
func (h *Handler) SaveScheduleSettings(c *gin.Context) {
	id, ok := pantryParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pantry id"})
		return
	}

	var req struct {
		Settings models.ScheduleSettings `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Service.SaveSettings(id, req.Settings); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": req.Settings})
}

// Availability reports whether a pantry accepts signups on a date.
func (h *Handler) Availability(c *gin.Context) {
	id, ok := pantryParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pantry id"})
		return
	}
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
		return
	}

	available, err := h.Service.Availability(id, date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "available": available})
}

// CheckUserConflict reports whether a user already holds a commitment
// at another pantry on the given date.
func (h *Handler) CheckUserConflict(c *gin.Context) {
	username := c.Query("username")
	date := c.Query("date")

	var exclude uint
	if raw := c.Query("exclude_pantry_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exclude_pantry_id"})
			return
		}
		exclude = uint(parsed)
	}

	result, err := h.Service.CheckConflict(username, date, exclude)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetUserSchedule lists a volunteer's commitments across all pantries
// within a date range.
func (h *Handler) GetUserSchedule(c *gin.Context) {
	username := c.Param("username")
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
		return
	}

	entries, err := h.Service.UserWeek(username, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.UserCommitment{}
	}
	c.JSON(http.StatusOK, gin.H{"schedule": entries})
}
