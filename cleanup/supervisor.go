package cleanup

import (
	"github.com/thejerf/suture/v4"

	"github.com/Serph91P/StreamVault-sub001/db"
)

// NewSupervisor wires both sweepers under one suture.Supervisor so a
// single Serve(ctx) call runs both for the process lifetime.
func NewSupervisor(gw *db.Gateway) *suture.Supervisor {
	sup := suture.NewSimple("cleanup")
	sup.Add(NewSessionSweeper(gw))
	sup.Add(NewShareTokenSweeper(gw))
	return sup
}
