package stub

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"docuvoice-client-go/internal/platform/config"
	"docuvoice-client-go/internal/platform/logging"
)

const userCookie = "user_id"

// legacyNoSession is the exact error body the production backend sends
// for a dead session. The client's no-session predicate matches on it,
// so the stub must not reword it.
const legacyNoSession = "세션이 존재하지 않습니다. 먼저 /start_session 호출하세요."

// Server is the in-memory stub backend.
type Server struct {
	cfg    config.StubConfig
	logger *logging.Logger
	store  *docStore
	engine *gin.Engine

	// Transcript returned by /api/stt. Tests override it per scenario.
	Transcript string
}

func NewServer(cfg config.StubConfig, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		store:      newDocStore(),
		Transcript: "what is this document about",
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if s.cfg.StaticDir != "" {
		r.Use(static.Serve("/", static.LocalFile(s.cfg.StaticDir, true)))
	}

	api := r.Group("/api", s.identify)
	api.POST("/start_session", s.handleStartSession)
	api.POST("/ask", s.handleAsk)
	api.POST("/tts", s.handleTTS)
	api.POST("/stt", s.handleSTT)
	api.GET("/conversation", s.handleConversation)
	api.GET("/recent_docs", s.handleRecentDocs)
	api.GET("/image", s.handleImage)
	api.POST("/delete_doc", s.handleDeleteDoc)
	api.POST("/feedback", s.handleFeedback)

	r.GET("/health", s.handleHealth)
	return r
}

// identify pins every caller to a user_id cookie, issuing one on first
// contact. All document state is scoped to it.
func (s *Server) identify(c *gin.Context) {
	if _, err := c.Cookie(userCookie); err != nil {
		id := uuid.NewString()
		c.SetCookie(userCookie, id, 86400*30, "/", "", false, true)
		// Make the fresh id visible to this request's handler too.
		c.Request.AddCookie(&http.Cookie{Name: userCookie, Value: id})
	}
	c.Next()
}

func (s *Server) userID(c *gin.Context) string {
	id, _ := c.Cookie(userCookie)
	return id
}

// Router exposes the handler for httptest servers.
func (s *Server) Router() http.Handler {
	return s.engine
}

// Store exposes session expiry to tests and the stub CLI.
func (s *Server) Store() interface{ ExpireSessions() } {
	return s.store
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.IP, s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoTag("STUB", "stub backend listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	v, _ := mem.VirtualMemory()
	cpuPct, _ := cpu.Percent(0, false)
	uptime, _ := host.Uptime()

	out := gin.H{"status": "ok", "uptime_sec": uptime}
	if v != nil {
		out["mem_used_percent"] = v.UsedPercent
	}
	if len(cpuPct) > 0 {
		out["cpu_percent"] = cpuPct[0]
	}
	c.JSON(http.StatusOK, out)
}
