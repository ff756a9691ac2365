package monitoring

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"stepperslife/utils"
)

// StartOpsServer serves /metrics and /healthz on a port separate from the
// public API. Runs in its own goroutine; errors are fatal because a silent
// ops plane is worse than a crashed one.
func StartOpsServer(port string, redisClient *redis.Client) {
	e := echo.New()

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/healthz", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	go func() {
		if err := http.ListenAndServe(":"+port, e); err != nil {
			log.Fatalf("Ops server failed: %v", err)
		}
	}()
}
