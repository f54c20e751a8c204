package utils

import (
	"io"

	"github.com/MrSnakeDoc/pulse/internal/logger"
)

// CloseLogged closes c during shutdown and reports the outcome under name.
func CloseLogged(log logger.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("component", name), logger.Error(err))
		return
	}
	log.Debug("closed", logger.String("component", name))
}
