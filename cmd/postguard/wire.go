//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"postguard/internal/biz"
	"postguard/internal/conf"
	"postguard/internal/data"
	"postguard/internal/server"
	"postguard/internal/service"
	"postguard/internal/worker"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Auth, *conf.Data, *conf.Moderation, *conf.Storage, *conf.Queue, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		server.ProviderSet,
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		wire.Bind(new(server.Pinger), new(*data.Data)),
		newApp,
	))
}

// wireWorker init the notification worker.
func wireWorker(*conf.Data, *conf.Queue, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.NewData,
		data.NewDeviceRepo,
		worker.ProviderSet,
		newWorkerApp,
	))
}
