// Package agent is the engine entry point. An Orchestrator takes one
// lifecycle event through selection, rendering, dispatch and delivery
// recording.
//
// Selection is sequential because cooldown acquisition is order
// dependent. Each send then runs on its own goroutine under the
// dispatcher's per-call timeout, and Handle returns once every send has
// been recorded. A render failure skips only its own plan. A catalog or
// cooldown outage declines the whole event and nothing is sent.
package agent
