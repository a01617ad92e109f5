package main

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pantrylink/schedule-api-go/pkg/database"
	"github.com/pantrylink/schedule-api-go/pkg/handlers"
	"github.com/pantrylink/schedule-api-go/pkg/models"
	"github.com/pantrylink/schedule-api-go/pkg/schedule"
)

func main() {
	// Load .env if it exists
	// Try root and parent directories for flexibility
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.InitDB()
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize database")
	}

	svc := schedule.New(db, schedule.DBDirectory{DB: db}, log)
	h := &handlers.Handler{DB: db, Service: svc}

	// Past dates can no longer conflict with anything; drop their index
	// rows every night.
	jobs := cron.New()
	if _, err := jobs.AddFunc("30 2 * * *", func() {
		today := time.Now().Format(models.DateLayout)
		if _, err := svc.PruneIndex(today); err != nil {
			log.Error().Err(err).Msg("commitment prune failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("could not schedule commitment prune")
	}
	jobs.Start()
	defer jobs.Stop()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "PantryLink Schedule API",
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

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	log.Info().Str("port", port).Msg("server starting")
	if err := r.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("could not run server")
	}
}
