package imports

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// ProgressController streams job snapshots over a websocket until the job
// reaches a terminal status. Polling the REST endpoint remains the primary
// protocol; this stream is a convenience for progress bars.
type ProgressController struct {
	Service ImportService
	Logger  *zap.Logger
}

func NewProgressController(service ImportService, logger *zap.Logger) *ProgressController {
	return &ProgressController{Service: service, Logger: logger}
}

func (c *ProgressController) HandleProgress(conn *websocket.Conn) {
	jobID := conn.Params("id")
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		job, err := c.Service.GetJob(context.Background(), jobID)
		if err != nil {
			conn.WriteJSON(map[string]string{"error": "job not found"})
			return
		}

		if err := conn.WriteJSON(job); err != nil {
			return
		}

		if job.Status.Terminal() || job.Status == ImportStatusValidationFailed {
			return
		}

		<-ticker.C
	}
}
