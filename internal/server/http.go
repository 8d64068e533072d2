package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"postguard/internal/biz"
	"postguard/internal/conf"
	"postguard/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency /healthz checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Server,
	ac *conf.Auth,
	db Pinger,
	posts *service.PostService,
	devices *service.DeviceService,
	moderation *service.ModerationService,
	admin *service.AdminService,
	logger log.Logger,
) (*khttp.Server, error) {
	auth, err := JWTAuth(ac)
	if err != nil {
		return nil, err
	}
	opts := []khttp.ServerOption{
		khttp.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
			auth,
		),
		khttp.ErrorEncoder(ErrorEncoder),
	}
	if c.HTTP.Network != "" {
		opts = append(opts, khttp.Network(c.HTTP.Network))
	}
	if c.HTTP.Addr != "" {
		opts = append(opts, khttp.Address(c.HTTP.Addr))
	}
	if c.HTTP.Timeout > 0 {
		opts = append(opts, khttp.Timeout(c.HTTP.Timeout.AsDuration()))
	}
	srv := khttp.NewServer(opts...)

	srv.Handle("/metrics", promhttp.Handler())
	srv.HandleFunc("/healthz", healthz(db))

	r := srv.Route("/")
	posts.RegisterRoutes(r)
	devices.RegisterRoutes(r)
	moderation.RegisterRoutes(r)
	admin.RegisterRoutes(r)
	return srv, nil
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// rejectionBody extends the kratos error body with the failing items.
type rejectionBody struct {
	Code     int                `json:"code"`
	Reason   string             `json:"reason"`
	Message  string             `json:"message"`
	Metadata map[string]string  `json:"metadata"`
	Items    []biz.RejectedItem `json:"items"`
}

// ErrorEncoder renders moderation rejections as 400 with every rejected
// item and defers to the kratos encoder for everything else.
func ErrorEncoder(w http.ResponseWriter, r *http.Request, err error) {
	var rej *biz.RejectionError
	if !stderrors.As(err, &rej) {
		khttp.DefaultErrorEncoder(w, r, err)
		return
	}
	body := rejectionBody{
		Code:    http.StatusBadRequest,
		Reason:  biz.ReasonModerationRejected,
		Message: rej.Error(),
		Metadata: map[string]string{
			"post_type": string(rej.PostType),
			"rejected":  strconv.Itoa(len(rej.Items)),
		},
		Items: rej.Items,
	}
	codec, _ := khttp.CodecForRequest(r, "Accept")
	data, err := codec.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/"+codec.Name())
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(data)
}
