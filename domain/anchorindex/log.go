package anchorindex

import (
	"github.com/flamenet/flamed/infrastructure/logger"
)

var log = logger.RegisterSubSystem("AIDX")
