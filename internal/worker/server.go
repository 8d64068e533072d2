package worker

import (
	"context"

	"postguard/internal/conf"
	"postguard/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/hibiken/asynq"
)

// ProviderSet is worker providers.
var ProviderSet = wire.NewSet(
	NewServer,
	NewProcessor,
	NewLogPusher,
	wire.Bind(new(Pusher), new(*LogPusher)),
)

// Server runs the asynq worker as a kratos transport server.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *log.Helper
}

// NewServer creates the worker server.
func NewServer(dc *conf.Data, qc *conf.Queue, p *Processor, logger log.Logger) *Server {
	srv := asynq.NewServer(data.AsynqRedisOpt(dc), asynq.Config{
		Concurrency: qc.Concurrency,
		Logger:      asynqLogger{log.NewHelper(log.With(logger, "module", "worker/asynq"))},
	})
	return &Server{srv: srv, mux: p.Handler(), log: log.NewHelper(logger)}
}

// Start implements transport.Server. asynq runs its own goroutines.
func (s *Server) Start(context.Context) error {
	s.log.Info("[asynq] worker starting")
	return s.srv.Start(s.mux)
}

// Stop implements transport.Server.
func (s *Server) Stop(context.Context) error {
	s.log.Info("[asynq] worker stopping")
	s.srv.Shutdown()
	return nil
}

// asynqLogger routes asynq logs through the kratos logger.
type asynqLogger struct {
	h *log.Helper
}

func (l asynqLogger) Debug(args ...any) { l.h.Debug(args...) }
func (l asynqLogger) Info(args ...any)  { l.h.Info(args...) }
func (l asynqLogger) Warn(args ...any)  { l.h.Warn(args...) }
func (l asynqLogger) Error(args ...any) { l.h.Error(args...) }
func (l asynqLogger) Fatal(args ...any) { l.h.Fatal(args...) }
