// ABOUTME: Reconciliation of live voices against the current timeline
// ABOUTME: Tears down changed voices and rides gain on unchanged ones
package engine

import "math"

func (e *Engine) reconcile() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconcileLocked()
}

// reconcileLocked stops voices whose clip vanished, changed or belongs to an
// earlier pass, then enters clips that now overlap the cursor
func (e *Engine) reconcileLocked() {
	e.reconcilePending.Store(false)
	if !e.playing {
		return
	}

	e.stats.Reconciles++
	e.config.Metrics.reconciled()

	for _, v := range e.voices {
		c, ok := e.timeline.Clip(v.key.clip)
		switch {
		case !ok:
			e.stopVoice(v, reasonDeleted)
		case v.key.iteration < e.iteration:
			e.stopVoice(v, reasonStale)
		case clipHash(c) != v.hash:
			e.stopVoice(v, reasonChanged)
		}
	}

	now := e.device.Now()
	pos := math.Max(e.songTime(now), e.scanFloor)
	e.scheduleOverlapping(pos)
}

// applyGains ramps each live voice toward its clip's current gain
func (e *Engine) applyGains() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.device.Now()
	tau := e.config.GainTimeConstant.Seconds()
	for _, v := range e.voices {
		c, ok := e.timeline.Clip(v.key.clip)
		if !ok {
			continue
		}
		target := c.EffectiveGain()
		if math.Abs(v.gain.Target()-target) > e.config.GainEpsilon {
			v.gain.SetTargetAtTime(target, now, tau)
			e.stats.GainRamps++
			e.config.Metrics.gainRamped()
		}
	}
}
