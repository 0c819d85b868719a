package pipeline

import (
	"github.com/mad-int/hlsget/pkg/logging"

	"go.uber.org/zap"
)

var logger = logging.Create("pipeline", logging.Dev)

func SetLogger(l *zap.SugaredLogger) {
	logger = l
}
