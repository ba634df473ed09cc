// Package graph renders flow definitions as Mermaid flowcharts, with an
// optional overlay highlighting a live session's position.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/sherpa/pkg/flow"
)

// Overlay carries session state to visualize on top of the definition.
type Overlay struct {
	VisitedSteps []string
	CurrentStep  string
	Completed    map[string]bool
}

// GenerateMermaid produces Mermaid flowchart syntax for a step sequence.
// Shapes by type:
//   - checklist: [[subroutine]]
//   - form: [/parallelogram/]
//   - everything else: [rectangle]
//
// Explicit next/skip references render as labeled edges; the implicit
// array-order fallback renders as a plain arrow to the following step.
// Conditional steps are annotated with a "?" marker.
func GenerateMermaid(steps []flow.Step, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i := range steps {
		s := &steps[i]
		safeID := sanitizeMermaidID(s.ID)

		opener, closer := "[", "]"
		switch s.Type {
		case flow.TypeChecklist:
			opener, closer = "[[", "]]"
		case flow.TypeForm:
			opener, closer = "[/", "/]"
		}

		label := s.Title()
		if s.Condition != nil {
			label += " ?"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeMermaidLabel(label), closer))

		writeEdges(&sb, steps, i)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for contrast regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef completed fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")

		styled := make(map[string]bool)
		for id := range overlay.Completed {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !styled[safeID] {
				styled[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s completed;\n", safeID))
			}
		}
		for _, id := range overlay.VisitedSteps {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !styled[safeID] {
				styled[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentStep != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentStep)))
		}
	}

	return sb.String()
}

func writeEdges(sb *strings.Builder, steps []flow.Step, i int) {
	s := &steps[i]
	safeID := sanitizeMermaidID(s.ID)

	if id, ok := s.Next.LiteralID(); ok {
		sb.WriteString(fmt.Sprintf("    %s -- \"next\" --> %s\n", safeID, sanitizeMermaidID(id)))
	} else if s.Next.IsZero() && i+1 < len(steps) {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", safeID, sanitizeMermaidID(steps[i+1].ID)))
	}

	if id, ok := s.Prev.LiteralID(); ok {
		sb.WriteString(fmt.Sprintf("    %s -. \"prev\" .-> %s\n", safeID, sanitizeMermaidID(id)))
	}
	if id, ok := s.SkipTo.LiteralID(); ok {
		sb.WriteString(fmt.Sprintf("    %s -. \"skip\" .-> %s\n", safeID, sanitizeMermaidID(id)))
	}
}

func escapeMermaidLabel(label string) string {
	return strings.ReplaceAll(label, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
