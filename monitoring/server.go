package monitoring

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server 暴露 /metrics 与 /health 的 HTTP 服务
type Server struct {
	addr    string
	metrics *Metrics
	router  *gin.Engine
}

// NewServer 创建服务，addr 形如 ":9090"
func NewServer(addr string, metrics *Metrics) *Server {
	// 设置 Gin 为发布模式，减少日志输出
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return &Server{addr: addr, metrics: metrics, router: router}
}

// Handler 路由（测试可直接用 httptest 调用）
func (s *Server) Handler() http.Handler { return s.router }

// Run 启动服务并阻塞，ctx 结束时优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("📊 Metrics endpoint: http://localhost%s/metrics", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("📊 Metrics server stopped")
	return nil
}
