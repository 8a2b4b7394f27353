package main

import (
	"database/sql"
	"log"
	"os"
	"strings"
	"time"

	"pillar-api/events"
	"pillar-api/handlers"
	"pillar-api/initializers"
	"pillar-api/middleware"
	"pillar-api/pkg/appenv"
	"pillar-api/repository"
	"pillar-api/websocket"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be set and at least 32 characters")
	}

	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", dbURL)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		log.Printf("DB connection failed: %v, retrying in 2s...", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatal("Could not connect to database:", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal("Migration driver error:", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		log.Fatal("Migration init error:", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal("Migration failed:", err)
	}

	if err := initializers.InitDefaults(db); err != nil {
		log.Fatal("Failed to initialize default roles:", err)
	}

	usersRepo := repository.NewUsersRepository(db)
	projectsRepo := repository.NewProjectsRepository(db)
	categoriesRepo := repository.NewCategoriesRepository(db)
	tasksRepo := repository.NewTasksRepository(db)
	notesRepo := repository.NewNotesRepository(db)
	presetsRepo := repository.NewFilterPresetsRepository(db)

	// The bus is constructed once and handed to everything that publishes
	// or listens; there is no global event state.
	bus := events.NewBus()
	emitter := events.NewEmitter(bus, projectsRepo)
	hub := websocket.NewHub(bus)

	if appenv.IsProduction() || os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(gin.Recovery())

	trustedProxies := os.Getenv("TRUSTED_PROXIES")
	if trustedProxies != "" {
		parts := strings.Split(trustedProxies, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := r.SetTrustedProxies(parts); err != nil {
			log.Fatalf("Invalid TRUSTED_PROXIES: %v", err)
		}
	} else {
		// Default to loopback only; override via TRUSTED_PROXIES in production
		_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	}

	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RateLimitMiddleware())

	authHandler := handlers.NewAuthHandler(usersRepo, jwtSecret)
	streamHandler := handlers.NewStreamHandler(bus)
	projectsHandler := handlers.NewProjectsHandler(projectsRepo, usersRepo, emitter)
	tasksHandler := handlers.NewTasksHandler(tasksRepo, projectsRepo, emitter)
	categoriesHandler := handlers.NewCategoriesHandler(categoriesRepo, emitter)
	notesHandler := handlers.NewNotesHandler(notesRepo, tasksRepo, projectsRepo, emitter)
	presetsHandler := handlers.NewFilterPresetsHandler(presetsRepo, emitter)

	r.GET("/health", handlers.HealthCheck)
	r.GET("/sw.js", handlers.ServeServiceWorker)

	authPublic := r.Group("/api/auth", middleware.RateLimitAuthMiddleware())
	authPublic.POST("/register", authHandler.Register)
	authPublic.POST("/login", authHandler.Login)

	auth := r.Group("/", handlers.AuthMiddleware(jwtSecret))
	{
		auth.GET("/api/events", streamHandler.Events)
		auth.GET("/ws", websocket.ServeWS(hub))

		auth.GET("/api/projects", projectsHandler.GetProjects)
		auth.POST("/api/projects", projectsHandler.CreateProject)
		auth.PATCH("/api/projects/:projectId", projectsHandler.UpdateProject)
		auth.DELETE("/api/projects/:projectId", projectsHandler.DeleteProject)
		auth.GET("/api/projects/:projectId/members", projectsHandler.GetMembers)
		auth.POST("/api/projects/:projectId/members", projectsHandler.AddMember)
		auth.DELETE("/api/projects/:projectId/members/:userId", projectsHandler.RemoveMember)

		auth.GET("/api/tasks", tasksHandler.GetTasks)
		auth.GET("/api/tasks/:id", tasksHandler.GetTask)
		auth.POST("/api/tasks", tasksHandler.CreateTask)
		auth.PATCH("/api/tasks/:id", tasksHandler.UpdateTask)
		auth.DELETE("/api/tasks/:id", tasksHandler.DeleteTask)
		auth.GET("/api/tasks/:id/notes", notesHandler.GetNotesForTask)

		auth.GET("/api/categories", categoriesHandler.GetCategories)
		auth.POST("/api/categories", categoriesHandler.CreateCategory)
		auth.PATCH("/api/categories/:id", categoriesHandler.UpdateCategory)
		auth.DELETE("/api/categories/:id", categoriesHandler.DeleteCategory)

		auth.POST("/api/notes", notesHandler.CreateNote)
		auth.PATCH("/api/notes/:id", notesHandler.UpdateNote)
		auth.DELETE("/api/notes/:id", notesHandler.DeleteNote)

		auth.GET("/api/filter-presets", presetsHandler.GetFilterPresets)
		auth.POST("/api/filter-presets", presetsHandler.CreateFilterPreset)
		auth.PATCH("/api/filter-presets/:id", presetsHandler.UpdateFilterPreset)
		auth.DELETE("/api/filter-presets/:id", presetsHandler.DeleteFilterPreset)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Server failed:", err)
	}
}
