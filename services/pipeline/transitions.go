package pipeline

import (
	"fmt"

	"github.com/nijaru/reelflow/models"
)

// Event is something that happened to a video during a pipeline run.
type Event string

const (
	EventSelected       Event = "selected"
	EventProcessStarted Event = "process_started"
	EventComposed       Event = "composed"
	EventPublished      Event = "published"
	EventQuotaExceeded  Event = "quota_exceeded"
	EventQuotaRetry     Event = "quota_retry"
	EventFailed         Event = "failed"
	EventInterrupted    Event = "interrupted"
)

// Action is the work the orchestrator starts after a transition.
type Action int

const (
	ActionNone Action = iota
	ActionProcess
	// ActionPublishInWindow publishes at the next publish window.
	ActionPublishInWindow
	// ActionPublishNow publishes immediately, ignoring the window.
	ActionPublishNow
)

type transition struct {
	next   models.VideoStatus
	action Action
}

// videoTransitions is the whole video pipeline graph. The empty status is
// the state before a video exists.
var videoTransitions = map[models.VideoStatus]map[Event]transition{
	"": {
		EventSelected: {models.VideoDiscovered, ActionProcess},
	},
	models.VideoDiscovered: {
		EventProcessStarted: {models.VideoProcessing, ActionNone},
		EventFailed:         {models.VideoError, ActionNone},
	},
	models.VideoProcessing: {
		EventProcessStarted: {models.VideoProcessing, ActionNone},
		EventComposed:       {models.VideoReady, ActionPublishInWindow},
		EventFailed:         {models.VideoError, ActionNone},
	},
	models.VideoReady: {
		EventPublished:     {models.VideoPublished, ActionNone},
		EventQuotaExceeded: {models.VideoPausedQuota, ActionNone},
		EventFailed:        {models.VideoError, ActionNone},
	},
	models.VideoPausedQuota: {
		EventQuotaRetry: {models.VideoRetrying, ActionPublishNow},
	},
	models.VideoRetrying: {
		EventPublished:     {models.VideoPublished, ActionNone},
		EventQuotaExceeded: {models.VideoPausedQuota, ActionNone},
		EventFailed:        {models.VideoError, ActionNone},
		EventInterrupted:   {models.VideoPausedQuota, ActionNone},
	},
}

func nextTransition(from models.VideoStatus, event Event) (transition, error) {
	t, ok := videoTransitions[from][event]
	if !ok {
		return transition{}, fmt.Errorf("no transition from %q on %q", from, event)
	}
	return t, nil
}

// CanTransition reports whether event is valid in status from.
func CanTransition(from models.VideoStatus, event Event) bool {
	_, err := nextTransition(from, event)
	return err == nil
}
