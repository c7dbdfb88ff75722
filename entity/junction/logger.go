package junction

import "github.com/sirupsen/logrus"

// 日志记录器
// 说明：使用logrus库，并添加"module"字段标识为"junction"模块
var log = logrus.WithField("module", "junction")
