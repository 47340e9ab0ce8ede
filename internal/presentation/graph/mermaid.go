package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/stride/pkg/domain"
)

// Overlay marks the position of a session on the pipeline diagram.
type Overlay struct {
	CurrentStage domain.StageID
	HasPlan      bool
}

// GenerateMermaid produces a Mermaid flowchart of the stage pipeline.
// Forward moves are solid arrows and retreats are dotted. The entry stage
// is drawn as a circle and the terminal stage as a stadium. When an overlay
// is given, stages before the current one are styled as visited.
func GenerateMermaid(stages []domain.Stage, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for i, st := range stages {
		opener, closer := "[", "]"
		switch i {
		case 0:
			opener, closer = "((", "))"
		case len(stages) - 1:
			opener, closer = "([", "])"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s <br/> %d-%d%%\"%s\n", st.ID, opener, st.Title, st.ProgressStart, st.ProgressEnd, closer)
	}
	for i := 0; i+1 < len(stages); i++ {
		from, to := stages[i].ID, stages[i+1].ID
		if from == domain.StagePrepare {
			fmt.Fprintf(&sb, "    %s -- \"plan\" --> %s\n", from, to)
		} else {
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
		}
		fmt.Fprintf(&sb, "    %s -.-> %s\n", to, from)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for _, st := range stages {
			if st.ID == overlay.CurrentStage {
				fmt.Fprintf(&sb, "    class %s current;\n", st.ID)
				break
			}
			fmt.Fprintf(&sb, "    class %s visited;\n", st.ID)
		}
		if overlay.HasPlan {
			sb.WriteString("    %% plan generated\n")
		}
	}

	return sb.String()
}
