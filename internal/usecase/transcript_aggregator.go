package usecase

import (
	"strings"

	"novadesk/internal/domain"
)

// transcriptAggregator keeps the ordered call log. Callers serialize access.
type transcriptAggregator struct {
	entries []domain.TranscriptEntry
	dedupe  bool
}

func newTranscriptAggregator(dedupe bool) *transcriptAggregator {
	return &transcriptAggregator{dedupe: dedupe}
}

// Add appends a final utterance and reports whether the log changed.
func (a *transcriptAggregator) Add(speaker domain.Speaker, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if a.dedupe && len(a.entries) > 0 {
		last := a.entries[len(a.entries)-1]
		if last.Speaker == speaker && last.Text == text {
			return false
		}
	}
	a.entries = append(a.entries, domain.TranscriptEntry{Speaker: speaker, Text: text})
	return true
}

// Clear empties the log and reports whether anything was removed.
func (a *transcriptAggregator) Clear() bool {
	if len(a.entries) == 0 {
		return false
	}
	a.entries = nil
	return true
}

func (a *transcriptAggregator) Entries() []domain.TranscriptEntry {
	out := make([]domain.TranscriptEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

func speakerForRole(role string, assistantRole string) domain.Speaker {
	if role == assistantRole {
		return domain.SpeakerAssistant
	}
	return domain.SpeakerCaller
}
