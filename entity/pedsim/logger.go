package pedsim

import "github.com/sirupsen/logrus"

// log 模块日志
var log = logrus.WithField("module", "pedsim")
