package portalauth

import (
	"context"
	"time"

	"github.com/golang/glog"

	internalaudit "github.com/hwlegacy/portalauth/internal/audit"
	internalmetrics "github.com/hwlegacy/portalauth/internal/metrics"
)

const (
	auditEventSignIn         = "sign_in"
	auditEventSignUp         = "sign_up"
	auditEventSignOut        = "sign_out"
	auditEventInitialize     = "initialize"
	auditEventRoleLookup     = "role_lookup_failure"
	auditEventRedirect       = "redirect"
	auditEventProviderChange = "provider_event"
)

// telemetry bundles the metric and audit sinks shared by the store, the
// coordinator and the engine. Both fields may be nil.
type telemetry struct {
	metrics *internalmetrics.Metrics
	audit   *internalaudit.Dispatcher
}

func (t telemetry) inc(id MetricID) {
	t.metrics.Inc(id)
}

func (t telemetry) observe(id MetricID, d time.Duration) {
	t.metrics.Observe(id, d)
}

func (t telemetry) emit(ctx context.Context, kind, userID, email string, err error, detail map[string]string) {
	if t.audit == nil {
		return
	}
	ev := AuditEvent{
		At:     time.Now().UTC(),
		Kind:   kind,
		UserID: userID,
		Email:  email,
		OK:     err == nil,
		Detail: detail,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	t.audit.Emit(ctx, ev)
	if glog.V(3) {
		glog.Infof("audit: %s user=%s ok=%t", kind, userID, ev.OK)
	}
}
