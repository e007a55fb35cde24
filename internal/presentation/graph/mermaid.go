// Package graph renders compiled machines as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/domain"
)

// Overlay marks the nodes a task has been through.
type Overlay struct {
	Visited []domain.NodeID
	// Current is highlighted when valid.
	Current domain.NodeID
}

// NoCurrent leaves the overlay without a highlighted node.
const NoCurrent = domain.Terminate

var (
	toolNodes  = map[domain.NodeID]bool{domain.NodeExecution: true, domain.NodeBooking: true}
	inputNodes = map[domain.NodeID]bool{domain.NodeClarification: true, domain.NodeConfirmation: true}
)

// GenerateMermaid produces a Mermaid flowchart for m.
// It applies semantic styling:
// - Entry: ((Circle))
// - Tool calls: [[Subroutine]]
// - May pause for the user: [/Parallelogram/]
// - End: (((Double circle)))
// - Default: [Rectangle]
// Conditional routes are drawn dotted, the fallback route solid.
func GenerateMermaid(m *runtime.Machine, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, id := range m.Nodes() {
		opener, closer := "[", "]"
		switch {
		case id == m.Entry():
			opener, closer = "((", "))"
		case toolNodes[id]:
			opener, closer = "[[", "]]"
		case inputNodes[id]:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", mermaidID(id), opener, id, closer)
	}
	fmt.Fprintf(&sb, "    %s(((\"end\")))\n", mermaidID(domain.Terminate))

	for _, e := range m.Edges() {
		arrow := "-->"
		if e.Conditional {
			arrow = "-.->"
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", mermaidID(e.From), arrow, mermaidID(e.To))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[domain.NodeID]bool)
		for _, id := range overlay.Visited {
			if id.Valid() && !seen[id] {
				seen[id] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", mermaidID(id))
			}
		}
		if overlay.Current.Valid() {
			fmt.Fprintf(&sb, "    class %s current;\n", mermaidID(overlay.Current))
		}
	}

	return sb.String()
}

func mermaidID(id domain.NodeID) string {
	if id == domain.Terminate {
		return "end_node"
	}
	return id.String()
}
