package session

import (
	"github.com/MrWong99/voicenotes/internal/i18n"
	"github.com/MrWong99/voicenotes/internal/note"
	"github.com/MrWong99/voicenotes/internal/visualizer"
)

// EventType names an event on the wire.
type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventStatus          EventType = "status"
	EventNoteChanged     EventType = "note_changed"
	EventHistoryChanged  EventType = "history_changed"
	EventTimerTick       EventType = "timer_tick"
	EventVisualizerFrame EventType = "visualizer_frame"
	EventRecordControl   EventType = "record_control"
)

// Event is anything the controller reports to the presentation layer.
type Event interface {
	Type() EventType
}

// EventSink receives controller events. Emit is called from the controller
// loop and from the timer and visualizer goroutines, so implementations must
// be safe for concurrent use and must not block.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Emit implements EventSink.
func (f SinkFunc) Emit(e Event) { f(e) }

type nopSink struct{}

func (nopSink) Emit(Event) {}

// StateChanged reports a lifecycle transition.
type StateChanged struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Status is the one-line status message shown under the record control.
type Status struct {
	Key  i18n.Key `json:"key"`
	Text string   `json:"text"`
	// Detail carries the underlying error message for failures.
	Detail string `json:"detail,omitempty"`
	Error  bool   `json:"error,omitempty"`
}

// NoteChanged carries a fresh rendering of the current note.
type NoteChanged struct {
	Note NoteView `json:"note"`
}

// HistoryChanged carries the stored notes, most recent first.
type HistoryChanged struct {
	Notes []HistoryEntry `json:"notes"`
}

// TimerTick carries the elapsed recording time as mm:ss.hh.
type TimerTick struct {
	Text string `json:"text"`
}

// VisualizerFrame carries one rendered waveform frame.
type VisualizerFrame struct {
	Frame visualizer.Frame `json:"frame"`
}

// RecordControl reports whether the record control accepts input and
// whether it shows the recording state.
type RecordControl struct {
	Enabled   bool `json:"enabled"`
	Recording bool `json:"recording"`
}

func (StateChanged) Type() EventType    { return EventStateChanged }
func (Status) Type() EventType          { return EventStatus }
func (NoteChanged) Type() EventType     { return EventNoteChanged }
func (HistoryChanged) Type() EventType  { return EventHistoryChanged }
func (TimerTick) Type() EventType       { return EventTimerTick }
func (VisualizerFrame) Type() EventType { return EventVisualizerFrame }
func (RecordControl) Type() EventType   { return EventRecordControl }

// NoteView is the rendered form of the current note. Fields in Placeholder
// state carry the localized placeholder text.
type NoteView struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Raw          string           `json:"raw"`
	Polished     string           `json:"polished"`
	PolishedHTML string           `json:"polishedHtml"`
	States       note.FieldStates `json:"states"`
	Timestamp    int64            `json:"timestamp"`
	// LiveTitle is shown next to the waveform while recording.
	LiveTitle string `json:"liveTitle"`
}

// HistoryEntry is one row of the history list.
type HistoryEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Timestamp int64  `json:"timestamp"`
	Current   bool   `json:"current"`
}
