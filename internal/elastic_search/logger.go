package elastic_search

import (
	"fmt"

	"go.uber.org/zap"
)

type ElasticLogger struct{}

func (l ElasticLogger) Printf(format string, v ...interface{}) {
	zap.L().Debug(fmt.Sprintf(format, v...))
}
