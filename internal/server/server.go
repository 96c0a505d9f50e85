package server

import (
	"fmt"

	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

type ServerType int

const (
	HTTP ServerType = iota
)

type Server interface {
	Init(port int, engine *driftwatch.Engine) error
}

func NewServer(serverType ServerType, port int, engine *driftwatch.Engine) (Server, error) {
	switch serverType {
	case HTTP:
		server := &httpServer{}
		return server, server.Init(port, engine)
	}
	return nil, fmt.Errorf("%d is not a valid server type", serverType)
}
