// Package autoload initializes the global logger from LOG_* environment
// variables as a side effect of import.
package autoload

import (
	configx "github.com/sirawit-t/agentic-pricing-pipeline/pkg/config"
	logx "github.com/sirawit-t/agentic-pricing-pipeline/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
