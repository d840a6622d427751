// Package hotupdate serves the websocket that extension pages and the
// background script connect to in watch mode, and tells them how to react to
// source changes.
package hotupdate

import (
	"time"

	"github.com/conneroisu/extplan/internal/plan"
)

// Message types understood by the hot-update client.
const (
	// MessageCSS asks pages to swap stylesheets without reloading.
	MessageCSS = "css"
	// MessageReload asks the extension to reload.
	MessageReload = "reload"
)

// cssStage is the pipeline stage whose output can be swapped in place.
const cssStage = "css"

// Message is sent to every connected client after a batch of changes.
type Message struct {
	Type      string    `json:"type"`
	Files     []string  `json:"files"`
	Timestamp time.Time `json:"timestamp"`
}

// Classify decides how clients should react to files changing. Only a batch
// made entirely of stylesheets can be applied without a reload; a file no
// stage owns forces a reload.
func Classify(pipeline plan.Pipeline, files []string) Message {
	msg := Message{
		Type:      MessageReload,
		Files:     append([]string{}, files...),
		Timestamp: time.Now(),
	}
	if len(files) == 0 {
		return msg
	}
	for _, f := range files {
		stage, ok := pipeline.StageFor(f)
		if !ok || stage.Name != cssStage {
			return msg
		}
	}
	msg.Type = MessageCSS
	return msg
}
