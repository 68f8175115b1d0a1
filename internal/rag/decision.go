package rag

import (
	"fmt"
	"math"
	"strings"

	"github.com/docsmith-ai/docsmith/internal/document"
)

// Answer modes. Grounded answers cite retrieved chunks; general answers fall
// back to the model's own knowledge when nothing retrieved is relevant.
const (
	ModeGrounded = "grounded"
	ModeGeneral  = "general"
)

const (
	// maxConfidence caps grounded confidence; retrieval similarity alone
	// never justifies a near-certain score.
	maxConfidence = 95

	// confidenceWindow is how many top matches feed the confidence mean.
	confidenceWindow = 3
)

// Policy holds the thresholds that separate grounded from general answers.
type Policy struct {
	// RelevanceCutoff is the similarity below which a retrieved chunk does
	// not count as evidence.
	RelevanceCutoff float64

	// MaxContextChars bounds the assembled context. Chunks are included
	// whole or not at all.
	MaxContextChars int
}

// Decision is the outcome of weighing retrieved chunks against the policy.
type Decision struct {
	// Mode is ModeGrounded when at least one chunk clears the cutoff,
	// ModeGeneral otherwise.
	Mode string

	// Relevant holds the chunks that cleared the cutoff, best first.
	Relevant []document.Match

	// Context is the prompt context assembled from Relevant, empty in
	// general mode.
	Context string

	// Confidence is the 0-100 score attached to a grounded answer.
	// General-mode confidence is the caller's concern.
	Confidence int
}

// Decide filters matches against the relevance cutoff and assembles the
// grounded context. Matches must already be ordered best first, which is how
// Engine.Retrieve returns them.
func (p Policy) Decide(matches []document.Match) Decision {
	var relevant []document.Match
	for _, m := range matches {
		if m.Similarity >= p.RelevanceCutoff {
			relevant = append(relevant, m)
		}
	}

	if len(relevant) == 0 {
		return Decision{Mode: ModeGeneral}
	}

	return Decision{
		Mode:       ModeGrounded,
		Relevant:   relevant,
		Context:    p.buildContext(relevant),
		Confidence: Confidence(relevant),
	}
}

// buildContext formats matches into tagged blocks within the character
// budget. A chunk that does not fit whole is skipped along with everything
// after it, so the context never ends mid-chunk.
func (p Policy) buildContext(matches []document.Match) string {
	var b strings.Builder
	for _, m := range matches {
		block := fmt.Sprintf("[Document: %s, Score: %.2f]\n%s", m.Filename, m.Similarity, m.Content)

		need := len(block)
		if b.Len() > 0 {
			need += 2
		}
		if b.Len()+need > p.MaxContextChars {
			break
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
	}
	return b.String()
}

// Confidence scores grounded answers as the mean similarity of the top
// matches, scaled to 0-100 and capped. Matches must be ordered best first.
func Confidence(matches []document.Match) int {
	if len(matches) == 0 {
		return 0
	}

	n := len(matches)
	if n > confidenceWindow {
		n = confidenceWindow
	}

	var sum float64
	for _, m := range matches[:n] {
		sum += m.Similarity
	}

	score := int(math.Round(sum / float64(n) * 100))
	if score > maxConfidence {
		score = maxConfidence
	}
	if score < 0 {
		score = 0
	}
	return score
}
