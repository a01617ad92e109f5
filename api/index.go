package handler

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/pantrylink/schedule-api-go/pkg/database"
	"github.com/pantrylink/schedule-api-go/pkg/handlers"
	"github.com/pantrylink/schedule-api-go/pkg/schedule"
)

var r *gin.Engine

func init() {
	// Load .env if it exists (for local testing with vercel dev)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	db, err := database.InitDB()
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize database")
	}
	svc := schedule.New(db, schedule.DBDirectory{DB: db}, log)
	h := &handlers.Handler{DB: db, Service: svc}

	gin.SetMode(gin.ReleaseMode)
	r = gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "PantryLink Schedule API (Vercel)",
			"version": "1.0.0",
		})
	})

	pantry := r.Group("/pantry")
	{
		pantry.POST("/create", h.CreatePantry)
		pantry.POST("/login", h.Login)
		pantry.GET("/check-user-conflict", h.CheckUserConflict)
		pantry.GET("/:id", h.GetPantry)
		pantry.GET("/:id/schedule", h.GetSchedule)
		pantry.GET("/:id/schedule-settings", h.GetScheduleSettings)
		pantry.GET("/:id/availability", h.Availability)

		authed := pantry.Group("")
		authed.Use(h.AuthMiddleware())
		{
			authed.PUT("/:id/schedule/:date", h.SaveSchedule)
			authed.PUT("/:id/schedule-settings", h.SaveScheduleSettings)
		}
	}

	r.GET("/volunteer/:username/schedule", h.GetUserSchedule)
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
