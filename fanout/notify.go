package fanout

import "fmt"

// Event is a transport-agnostic notification derived from a broadcast
// recording.* message: a human-readable title/body plus the structured
// payload that produced it. Formatted here, sent nowhere -- push and email
// transports stay out of scope, so Event is as far as this package goes.
type Event struct {
	Type    MessageType `json:"type"`
	Title   string      `json:"title"`
	Body    string      `json:"body"`
	Payload interface{} `json:"payload"`
}

// Sink is the contract an out-of-scope transport (web push, email, Apprise)
// implements to receive formatted events; Dispatch only ever calls Send.
type Sink interface {
	Send(e Event) error
}

// Formatter turns a broadcast Message into a notify Event, mirroring the
// original notification service's per-event-type title/body templates.
// Only recording started/completed/failed events produce a notification;
// every other type (recording stopped/progress, task/queue chatter) returns
// ok=false.
type Formatter struct{}

func (Formatter) Format(msg Message) (Event, bool) {
	switch msg.Type {
	case TypeRecordingStarted:
		p, _ := msg.Data.(RecordingEventPayload)
		return Event{
			Type:    msg.Type,
			Title:   fmt.Sprintf("Recording started: streamer %d", p.StreamerID),
			Body:    fmt.Sprintf("Recording %d started for stream %d", p.RecordingID, p.StreamID),
			Payload: p,
		}, true

	case TypeRecordingCompleted:
		p, _ := msg.Data.(RecordingEventPayload)
		return Event{
			Type:    msg.Type,
			Title:   fmt.Sprintf("Recording completed: streamer %d", p.StreamerID),
			Body:    fmt.Sprintf("Recording %d finished (%d bytes)", p.RecordingID, p.FileSize),
			Payload: p,
		}, true

	case TypeRecordingFailed:
		p, _ := msg.Data.(RecordingEventPayload)
		return Event{
			Type:    msg.Type,
			Title:   fmt.Sprintf("Recording failed: streamer %d", p.StreamerID),
			Body:    fmt.Sprintf("Recording %d failed: %s", p.RecordingID, p.Reason),
			Payload: p,
		}, true

	default:
		return Event{}, false
	}
}

// Dispatch formats msg and fans it out to every sink, collecting (not
// stopping on) individual send failures so one broken transport doesn't
// block the rest, same as the original dispatcher's per-service try/except.
func Dispatch(sinks []Sink, msg Message, f Formatter) []error {
	event, ok := f.Format(msg)
	if !ok {
		return nil
	}
	var errs []error
	for _, s := range sinks {
		if err := s.Send(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
