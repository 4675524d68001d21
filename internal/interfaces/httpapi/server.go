package httpapi

import (
	"net/http"
	"time"

	"github.com/riskibarqy/match-sync/internal/platform/logging"
)

type RouterConfig struct {
	ServiceName        string
	SwaggerEnabled     bool
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
}

func NewRouter(handler *Handler, logger *logging.Logger, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "match-sync"
	}

	mux := http.NewServeMux()
	registerSystemRoutes(mux, handler, cfg.SwaggerEnabled)
	registerMatchRoutes(mux, handler)

	return RequestTracing(cfg.ServiceName,
		RequestID(
			RequestLogging(logger,
				CORS(cfg.CORSAllowedOrigins,
					recoverPanic(logger,
						RequestTimeout(cfg.RequestTimeout, mux))))))
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.recoverPanic")
		defer span.End()

		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.ErrorContext(ctx, "panic recovered", "panic", rec)
				writeInternalError(ctx, w)
			}
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
