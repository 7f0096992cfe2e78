package server

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/logger"
	"github.com/papercomputeco/skycast/pkg/storage"
	"github.com/papercomputeco/skycast/pkg/stream"
	"github.com/papercomputeco/skycast/server/worker"
)

// handleWeatherStream answers a weather query as an event stream: one chunk
// frame per agent fragment followed by a done frame with usage.
//
// The first fragment is pulled before the status line is written, so input
// errors and early agent failures still get a JSON error response. Once the
// stream has started, a failure aborts the connection without a terminal
// frame.
func (s *Server) handleWeatherStream(c *fiber.Ctx) error {
	var req WeatherRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fiber.StatusBadRequest, msgInvalidBody)
	}

	query, ok := req.Query()
	if !ok {
		return s.fail(c, fiber.StatusBadRequest, msgMissingQuery)
	}

	a, status, err := s.agentFor(c)
	if err != nil {
		return s.fail(c, status, err.Error())
	}

	// fasthttp recycles the request context once the handler returns, so
	// everything the relay goroutine needs is copied out first.
	path := strings.Clone(c.Path())
	turn := storage.StartTurn(a.Name(), storage.ModeStream, query, time.Now())

	s.logger.Debug("starting weather stream",
		"turn_id", turn.ID,
		"agent", a.Name(),
		"query", query,
	)

	// The stream outlives this handler, so it must not be tied to the
	// request context.
	src, err := a.Stream(context.Background(), agent.Request{Prompt: query, MaxSteps: s.config.MaxSteps})
	if err != nil {
		s.recordFailure(turn, path, err)
		return s.failInternal(c, "Failed to start weather stream", err)
	}

	primed, err := stream.Prime(src)
	if err != nil {
		_ = src.Close()
		s.recordFailure(turn, path, err)
		return s.failInternal(c, "Failed to start weather stream", err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	c.Set("X-Skycast-Turn-Id", turn.ID)

	transport, body := stream.NewTransport()
	c.Context().Response.SetBodyStream(body, -1)

	go func() {
		result, err := stream.Relay(primed, transport)
		if err != nil {
			s.logger.Warn("weather stream aborted",
				"turn_id", turn.ID,
				"chunks", result.Chunks,
				logger.Err(err),
			)
		} else {
			s.logger.Debug("weather stream complete",
				"turn_id", turn.ID,
				"chunks", result.Chunks,
				"bytes", transport.BytesWritten(),
			)
		}

		turn.Finish(result.Text, result.Usage, result.Chunks, err)
		s.workerPool.Enqueue(worker.Job{Turn: turn, Path: path})
	}()

	return nil
}
