package recovery

import (
	"github.com/thejerf/suture/v4"
)

// NewSupervisor wires the reaper and the drift watcher under one
// suture.Supervisor, so a single Serve(ctx) call runs both for the
// lifetime of the process with suture's own service-level restart policy
// covering a watcher crash (e.g. fsnotify running out of inotify handles).
func NewSupervisor(m *Manager) (*suture.Supervisor, error) {
	sup := suture.NewSimple("recovery")
	sup.Add(NewReaper(m))

	dw, err := NewDriftWatcher(m)
	if err != nil {
		return nil, err
	}
	sup.Add(dw)

	return sup, nil
}
