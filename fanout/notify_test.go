package fanout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	got []Event
	err error
}

func (f *fakeSink) Send(e Event) error {
	f.got = append(f.got, e)
	return f.err
}

func TestFormatterOnlyFormatsRecordingEvents(t *testing.T) {
	_, ok := Formatter{}.Format(Message{Type: TypeTaskStatusUpdate})
	require.False(t, ok)

	e, ok := Formatter{}.Format(Message{Type: TypeRecordingFailed, Data: RecordingEventPayload{RecordingID: 5, StreamerID: 2, Reason: "boom"}})
	require.True(t, ok)
	require.Contains(t, e.Body, "boom")
}

func TestDispatchFansOutToAllSinksAndCollectsErrors(t *testing.T) {
	ok := &fakeSink{}
	failing := &fakeSink{err: errors.New("down")}

	errs := Dispatch([]Sink{ok, failing}, Message{
		Type: TypeRecordingStarted,
		Data: RecordingEventPayload{RecordingID: 1, StreamerID: 1},
	}, Formatter{})

	require.Len(t, errs, 1)
	require.Len(t, ok.got, 1)
	require.Len(t, failing.got, 1)
}

func TestDispatchSkipsNonRecordingMessages(t *testing.T) {
	sink := &fakeSink{}
	errs := Dispatch([]Sink{sink}, Message{Type: TypeQueueStatsUpdate}, Formatter{})
	require.Nil(t, errs)
	require.Empty(t, sink.got)
}
