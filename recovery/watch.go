package recovery

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/fanout"
	"github.com/Serph91P/StreamVault-sub001/log"
)

// DriftWatcher is a suture.Service watching config.RecordingsRoot for
// post-startup filesystem drift: a raw capture file disappearing out from
// under an in-progress recording (an operator deleting disk space, a
// failing mount, manual cleanup gone wrong). Only a path equal to an
// active_recording_state output path is matched; a removed segments
// directory is not reported.
// StartupScan only runs once, so this is what catches the same class of
// problem happening later in the process lifetime. Grounded on the
// parent-directory watch + rename/remove event filter used by the teacher
// pack's fsnotify-based file waiters.
type DriftWatcher struct {
	m       *Manager
	watcher *fsnotify.Watcher
}

func NewDriftWatcher(m *Manager) (*DriftWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DriftWatcher{m: m, watcher: w}, nil
}

// Serve implements suture.Service. It watches every directory under
// config.RecordingsRoot that exists at the time of the call, adding newly
// created streamer/season directories as they appear.
func (d *DriftWatcher) Serve(ctx context.Context) error {
	defer d.watcher.Close()

	if err := d.addExistingDirs(); err != nil {
		log.LogError("", "recovery: drift watcher failed to seed directory watches", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			d.handleEvent(ctx, event)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			log.LogError("", "recovery: drift watcher error", err)
		}
	}
}

func (d *DriftWatcher) addExistingDirs() error {
	return filepath.Walk(config.RecordingsRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			_ = d.watcher.Add(path)
		}
		return nil
	})
}

func (d *DriftWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = d.watcher.Add(event.Name)
		}
		return
	}
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	cp := d.findCaptureByPath(event.Name)
	if cp == nil {
		return
	}
	log.Log("", "recovery: active recording's raw file disappeared out from under it", "recording_id", cp.recordingID, "path", event.Name)
	d.m.broadcast(fanout.Message{Type: fanout.TypeRecordingFailed, Data: fanout.RecordingEventPayload{
		RecordingID: cp.recordingID, StreamerID: cp.streamerID, Reason: "raw_capture_file_removed",
	}})
}

type trackedCapture struct {
	recordingID int64
	streamerID  int64
}

// findCaptureByPath cross-references the drifted path against every
// currently active_recording_state row rather than recording.Manager's
// in-memory map, so the watcher has no compile-time dependency on the
// recording package.
func (d *DriftWatcher) findCaptureByPath(path string) *trackedCapture {
	states, err := d.m.gw.ListActiveRecordings(context.Background())
	if err != nil {
		return nil
	}
	for _, s := range states {
		if s.OutputPath == path {
			return &trackedCapture{recordingID: s.RecordingID, streamerID: s.StreamerID}
		}
	}
	return nil
}
