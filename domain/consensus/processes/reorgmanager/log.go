package reorgmanager

import (
	"github.com/flamenet/flamed/infrastructure/logger"
)

var log = logger.RegisterSubSystem("REOR")
