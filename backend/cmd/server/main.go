package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"simp-tracker/backend/internal/drawing"
	"simp-tracker/backend/internal/render"
	"simp-tracker/backend/internal/simps"
	"simp-tracker/backend/internal/storage"
	"simp-tracker/backend/internal/tracker"
	"simp-tracker/backend/pkg/config"
	apperrors "simp-tracker/backend/pkg/errors"
	"simp-tracker/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	backend, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open edge store", zap.Error(err))
	}
	defer backend.Close()

	renderer := render.New(render.Options{
		Binary:  cfg.RenderBinary,
		Format:  cfg.RenderFormat,
		Dir:     cfg.TreeFileLocation,
		Timeout: cfg.RenderTimeout,
	}, log.Named("render"))

	// The server never mutates edges; every read goes through a fresh snapshot
	svc := tracker.NewService(simps.NewStore(), backend, renderer, tracker.Limits{}, log.Named("tracker"))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: newRouter(svc, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		return
	}
	log.Info("Server exited")
}

type relationJSON struct {
	UserID int64     `json:"user_id,string"`
	Since  time.Time `json:"since"`
}

type listingJSON struct {
	UserID     int64          `json:"user_id,string"`
	SimpingFor []relationJSON `json:"simping_for"`
	SimpedBy   []relationJSON `json:"simped_by"`
	Mutual     []relationJSON `json:"mutual"`
}

func toRelationsJSON(relations []tracker.Relation) []relationJSON {
	out := make([]relationJSON, 0, len(relations))
	for _, r := range relations {
		out = append(out, relationJSON{UserID: r.UserID, Since: r.Since})
	}
	return out
}

func newRouter(svc *tracker.Service, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	users := router.Group("/api/guilds/:guild/users/:user")
	users.Use(snapshotMiddleware(svc, log))
	{
		users.GET("/relations", func(c *gin.Context) {
			view, guildID, userID := requestView(c)

			listing, err := view.ListRelations(c.Request.Context(), guildID, userID, nil)
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, listingJSON{
				UserID:     listing.UserID,
				SimpingFor: toRelationsJSON(listing.SimpingFor),
				SimpedBy:   toRelationsJSON(listing.SimpedBy),
				Mutual:     toRelationsJSON(listing.Mutual),
			})
		})

		users.GET("/graph.dot", func(c *gin.Context) {
			view, guildID, userID := requestView(c)

			drawn := view.Draw(guildID, userID, drawing.Options{Mode: modeFromQuery(c)})
			c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", []byte(drawing.Serialize(drawn)))
		})

		users.GET("/graph.png", func(c *gin.Context) {
			view, guildID, userID := requestView(c)

			rendering, err := view.RenderGraph(c.Request.Context(), tracker.RenderRequest{
				GuildID: guildID,
				FocalID: userID,
				Mode:    modeFromQuery(c),
			})
			if err != nil {
				writeError(c, log, err)
				return
			}
			if rendering.Empty {
				c.Status(http.StatusNoContent)
				return
			}
			c.Data(http.StatusOK, rendering.ContentType, rendering.Image)
		})
	}

	return router
}

const (
	viewKey  = "view"
	guildKey = "guild_id"
	userKey  = "user_id"
)

// snapshotMiddleware parses the path IDs and loads the guild's edges
func snapshotMiddleware(svc *tracker.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID, err := strconv.ParseInt(c.Param("guild"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid guild id"})
			return
		}
		userID, err := strconv.ParseInt(c.Param("user"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		snapshot, err := svc.Snapshot(c.Request.Context(), guildID)
		if err != nil {
			c.Abort()
			writeError(c, log, err)
			return
		}

		c.Set(viewKey, svc.WithStore(snapshot))
		c.Set(guildKey, guildID)
		c.Set(userKey, userID)
		c.Next()
	}
}

func requestView(c *gin.Context) (*tracker.Service, int64, int64) {
	return c.MustGet(viewKey).(*tracker.Service), c.GetInt64(guildKey), c.GetInt64(userKey)
}

func modeFromQuery(c *gin.Context) drawing.Mode {
	if closure, _ := strconv.ParseBool(c.Query("closure")); closure {
		return drawing.ModeClosure
	}
	return drawing.ModeFocal
}

// writeError maps error kinds onto HTTP statuses
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var timeout *apperrors.ErrRenderTimeout
	switch {
	case errors.As(err, &timeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "render timed out"})
	case apperrors.IsErrorType(err, apperrors.ErrorTypeContext):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	default:
		log.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("error_type", apperrors.TypeOf(err)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
