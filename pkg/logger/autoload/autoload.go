// Package autoload initializes the global logger from LOG_* environment variables
// when imported.
package autoload

import (
	"github.com/kelseyhightower/envconfig"

	logx "github.com/tanpawarit/Chative-Agent-Routing/pkg/logger"
)

func init() {
	var conf logx.Config
	if err := envconfig.Process("LOG", &conf); err != nil {
		logx.Init()
		return
	}
	logx.Init(conf)
}
