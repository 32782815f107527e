package monitor

import (
	"time"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/feedback"
	"github.com/boshu2/driftwatch/internal/loopdetect"
	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/types"
)

// maxLoopWarnings bounds the loop warnings kept for the compaction summary.
const maxLoopWarnings = 10

// sessionState is what one hook invocation hands to the next. A long-lived
// agent keeps the same data in memory and writes it for status and restarts.
type sessionState struct {
	SessionID    string            `json:"session_id,omitempty"`
	Pending      *feedback.Pending `json:"pending,omitempty"`
	Tensions     []types.Tension   `json:"tensions,omitempty"`
	InjectedIDs  []string          `json:"injected_ids,omitempty"`
	LoopWarnings []string          `json:"loop_warnings,omitempty"`
	Loop         loopdetect.State  `json:"loop"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// restore loads the scorer state and session file. Missing or corrupt
// files leave the fresh defaults in place.
func (a *Agent) restore() {
	var st types.EntropyState
	if a.store.ReadJSON(storage.EntropyStateFile, &st) {
		a.scorer.Restore(st)
		a.detectors.Restore(st.MetaHistory)
		a.lastTriggers = st.LastTriggers
	}

	var s sessionState
	if !a.store.ReadJSON(storage.SessionFile, &s) {
		return
	}
	a.session = s
	a.feedback.RestorePending(s.Pending)
	a.tensions.Restore(s.Tensions)
	a.loops.Restore(s.Loop)
}

// beginSessionLocked resets session-scoped state when sessionID differs from
// the current session. An empty sessionID continues the current session.
func (a *Agent) beginSessionLocked(sessionID string) {
	if sessionID == "" || sessionID == a.session.SessionID {
		return
	}
	if a.session.SessionID != "" {
		a.logger.Debug("session boundary",
			zap.String("from", a.session.SessionID), zap.String("to", sessionID))
	}
	a.loops.Reset()
	a.feedback.RestorePending(nil)
	a.session.SessionID = sessionID
	a.session.InjectedIDs = nil
	a.session.LoopWarnings = nil
}

func (a *Agent) addLoopWarningLocked(msg string) {
	a.session.LoopWarnings = append(a.session.LoopWarnings, msg)
	if n := len(a.session.LoopWarnings); n > maxLoopWarnings {
		a.session.LoopWarnings = a.session.LoopWarnings[n-maxLoopWarnings:]
	}
}

// saveLocked persists the scorer state and session file. Failures are
// logged and swallowed.
func (a *Agent) saveLocked() {
	st := a.scorer.State()
	st.LastTriggers = a.lastTriggers
	st.MetaHistory = a.detectors.History()
	if err := a.store.WriteJSON(storage.EntropyStateFile, st); err != nil {
		a.logger.Warn("save entropy state failed", zap.Error(err))
	}

	a.session.Pending = a.feedback.Pending()
	a.session.Tensions = a.tensions.All()
	a.session.Loop = a.loops.State()
	a.session.UpdatedAt = a.now().UTC()
	if err := a.store.WriteJSON(storage.SessionFile, a.session); err != nil {
		a.logger.Warn("save session failed", zap.Error(err))
	}
}
