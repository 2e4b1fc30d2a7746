package ldb

import (
	"github.com/flamenet/flamed/infrastructure/logger"
)

var log = logger.RegisterSubSystem("LDB ")
