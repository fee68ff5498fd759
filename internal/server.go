package internal

import (
	"net/http"
	"strconv"
	"time"
)

// Route binds a mux pattern to a handler. Limited routes sit behind the
// per-client rate limiter.
type Route struct {
	Pattern string
	Handler http.Handler
	Limited bool
}

// NewMux registers routes with panic recovery and request metrics applied to
// each, plus rate limiting on limited routes.
func NewMux(cfg AppConfig, sup *Supervisor, routes ...Route) *http.ServeMux {
	mux := http.NewServeMux()
	for _, route := range routes {
		handler := route.Handler
		if route.Limited {
			handler = NewRateLimitHandler(handler, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 10*time.Minute)
		}
		if sup != nil {
			handler = sup.Middleware(handler)
		}
		mux.Handle(route.Pattern, InstrumentHandler(route.Pattern, handler))
	}
	return mux
}

// NewHTTPServer returns a server listening on the configured port with the
// configured timeouts. The write timeout stays zero unless set so that long
// build streams are not cut off.
func NewHTTPServer(cfg AppConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderMS) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutMS) * time.Millisecond,
	}
}
