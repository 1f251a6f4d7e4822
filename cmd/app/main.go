package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskflow/internal/auth"
	"github.com/BuzzLyutic/taskflow/internal/config"
	"github.com/BuzzLyutic/taskflow/internal/event"
	"github.com/BuzzLyutic/taskflow/internal/handler"
	"github.com/BuzzLyutic/taskflow/internal/repo"
	"github.com/BuzzLyutic/taskflow/internal/service"
	"github.com/BuzzLyutic/taskflow/internal/worker"
)

func main() {
	// Подключаем логгер
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Загрузка конфигурации
	cfg := config.Load()

	// Подключаем БД
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to Database.")
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal("Failed to ping the Database.")
	}
	logger.Info("Successfully connected to the Database!")

	// Подключаем Redis: pub/sub канал событий + кэш списков
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("Invalid REDIS_URL.")
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to ping Redis.")
	}
	logger.Info("Successfully connected to Redis!")

	taskRepo := repo.NewCache(repo.NewTaskRepo(pool), redisClient, cfg.CacheTTL)
	channel := event.NewRedisChannel(redisClient, logger)
	taskService := service.NewTaskService(taskRepo, channel, logger)
	taskHandler := handler.NewTaskHandler(taskService, channel, logger)
	adminHandler := handler.NewAdminHandler(taskService, logger)

	janitor, err := worker.NewJanitor(taskRepo, logger,
		cfg.CleanupSchedule,
		time.Duration(cfg.RetentionDays)*24*time.Hour,
	)
	if err != nil {
		logger.Fatal("Bad cleanup schedule: ", zap.Error(err))
	}
	janitor.Start()
	defer janitor.Stop()

	r := chi.NewRouter() // Создаем роутер
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware([]byte(cfg.JWTSecret)))

		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.List)
			r.Post("/", taskHandler.Create)
			r.Post("/reorder", taskHandler.Reorder)
			r.Get("/{id}", taskHandler.Get)
			r.Patch("/{id}", taskHandler.Update)
			r.Delete("/{id}", taskHandler.Delete)
			r.Post("/{id}/restore", taskHandler.Restore)
			r.With(auth.RequireAdmin).Delete("/{id}/purge", taskHandler.Purge)
		})

		r.Get("/api/events/stream", taskHandler.Stream)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/dashboard", adminHandler.Dashboard)
			r.Get("/users/{id}/tasks", adminHandler.UserTasks)
			r.Get("/tasks", adminHandler.AllTasks)
		})
	})

	srv := http.Server{ // Создаем сервер
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// SSE-стрим живет дольше обычного запроса
		WriteTimeout: 0,
	}

	go func() { // Запуск сервера и обработка ошибок
		logger.Info("Server started at ", zap.String("port", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed: ", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Shutdown error: ", zap.Error(err))
	}
	logger.Info("Server stopped succsessfully!")
}
