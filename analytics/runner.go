package analytics

import (
	"github.com/golang/glog"
)

// Runner fans events out to the enabled modules. The zero value is usable and drops
// everything.
type Runner struct {
	modules []Module
}

func NewRunner(modules ...Module) *Runner {
	return &Runner{modules: modules}
}

// Publish delivers the event to every module. A module cannot veto delivery to the
// others; dispatch failures are logged and counted against no one.
func (r *Runner) Publish(event Event) {
	for _, m := range r.modules {
		if err := Dispatch(m, event); err != nil {
			glog.Warningf("analytics event dropped: %v", err)
			return
		}
	}
}

// Shutdown stops every module, blocking until each one finished flushing.
func (r *Runner) Shutdown() {
	for _, m := range r.modules {
		m.Shutdown()
	}
}
