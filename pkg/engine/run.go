package engine

import "time"

// Start marks the engine running and launches the run-loop worker. It is
// called by the leader lifecycle's onElected, after hydration has completed
// and while still holding exclusive hydration control.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	e.wg.Add(1)
	go e.runLoop()
}

// Stop marks the engine not-running and waits for the run-loop worker to
// exit. It is called by the leader lifecycle's onDefeated.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.mu.Lock()
	stopCh := e.stopCh
	e.mu.Unlock()
	close(stopCh)
	e.wg.Wait()
}

// runLoop alternates iteration and sleep for as long as running is set.
// Iteration runs under L; the sleep does not.
func (e *Engine) runLoop() {
	defer e.wg.Done()
	for e.running.Load() {
		e.mu.Lock()
		e.iterationLocked(e.clock())
		e.mu.Unlock()

		select {
		case <-e.stopCh:
			return
		case <-time.After(e.cfg.ScheduleHorizon):
		}
	}
}
