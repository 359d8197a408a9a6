package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const statsPrefix = "folio:stats:"

// Redis keys read back by the health service.
const (
	KeyReqTotal  = statsPrefix + "req_total"
	KeyReqErrors = statsPrefix + "req_errors"
	KeyResTime   = statsPrefix + "res_time_total"
	KeyResCount  = statsPrefix + "res_count"
	KeyStartTime = statsPrefix + "start_time"
	KeyLastReq   = statsPrefix + "last_request"
	KeyErrorLog  = statsPrefix + "error_log"
)

const errorLogSize = 50

type requestMark struct {
	Time    time.Time `json:"time"`
	TraceID string    `json:"trace_id,omitempty"`
	IP      string    `json:"ip,omitempty"`
	Method  string    `json:"method"`
	Path    string    `json:"path"`
	Status  int       `json:"status,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func untracked(path string) bool {
	return strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/favicon")
}

// HealthMarker counts API traffic in Redis and keeps the last failed requests
// for /health/errors. A nil client disables it. Redis failures never fail the request.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || untracked(c.Path()) {
			return c.Next()
		}

		ctx := context.Background()
		mark := requestMark{Time: time.Now(), IP: c.IP(), Method: c.Method(), Path: c.OriginalURL()}
		if b, err := json.Marshal(mark); err == nil {
			pipe := rdb.Pipeline()
			pipe.Set(ctx, KeyLastReq, b, 0)
			pipe.Incr(ctx, KeyReqTotal)
			_, _ = pipe.Exec(ctx)
		}

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = StatusFor(err)
		}
		pipe := rdb.TxPipeline()
		pipe.Incr(ctx, KeyResCount)
		pipe.IncrByFloat(ctx, KeyResTime, float64(time.Since(mark.Time).Milliseconds()))
		if status >= fiber.StatusInternalServerError {
			mark.Time, mark.IP = time.Now(), ""
			mark.TraceID, mark.Status = GetTraceID(c), status
			if err != nil {
				mark.Error = err.Error()
			}
			pipe.Incr(ctx, KeyReqErrors)
			if b, mErr := json.Marshal(mark); mErr == nil {
				pipe.LPush(ctx, KeyErrorLog, b)
				pipe.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
			}
		}
		_, _ = pipe.Exec(ctx)
		return err
	}
}
