package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/stride/pkg/domain"
)

// SessionReport formats a live session as markdown.
func SessionReport(s *domain.PipelineSession, next *domain.NextAction) string {
	var b strings.Builder
	stage, _ := domain.LookupStage(s.CurrentStage)

	fmt.Fprintf(&b, "# Session %s\n\n", s.SessionID)
	fmt.Fprintf(&b, "**User:** %s  \n", s.UserID)
	fmt.Fprintf(&b, "**Stage:** %s (%d%%)  \n", stage.Title, s.Progress)
	fmt.Fprintf(&b, "**Last activity:** %s\n\n", s.LastActivityAt.Format("2006-01-02 15:04"))

	if in := s.Inputs; in != nil {
		b.WriteString("## Preparation\n\n")
		fmt.Fprintf(&b, "- Time: %d min\n", in.AvailableTime)
		if in.LocationName != "" {
			fmt.Fprintf(&b, "- Location: %s\n", in.LocationName)
		}
		fmt.Fprintf(&b, "- Energy: %d/10\n", in.EnergyLevel)
		if len(in.AvailableEquipment) > 0 {
			fmt.Fprintf(&b, "- Equipment: %s\n", strings.Join(in.AvailableEquipment, ", "))
		}
		if in.HasPain {
			fmt.Fprintf(&b, "- Pain: %s\n", in.PainDetails)
		}
		b.WriteString("\n")
	}

	if s.Plan != nil {
		writePlan(&b, s.Plan)
	}
	if s.Feedback != nil {
		fmt.Fprintf(&b, "## Feedback\n\nCompleted %d of %d exercises, RPE %.1f.\n\n",
			s.Feedback.CompletedCount(), len(s.Feedback.Exercises), s.Feedback.OverallRPE)
	}
	if s.Analysis != nil {
		writeAnalysis(&b, s.Analysis)
	}
	if next != nil {
		fmt.Fprintf(&b, "## Next\n\n**%s**: %s\n", next.Title, next.Description)
		if next.ScheduledDate != nil {
			fmt.Fprintf(&b, "\nScheduled for %s.\n", next.ScheduledDate.Format("Mon 02 Jan 15:04"))
		}
	}
	return b.String()
}

// AnalysisReport formats an archived analysis.
func AnalysisReport(rec *domain.AnalysisRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis %s\n\n", rec.SessionID)
	fmt.Fprintf(&b, "Created %s", rec.CreatedAt.Format("2006-01-02 15:04"))
	if rec.Metadata.LatencyMs > 0 {
		fmt.Fprintf(&b, " in %d ms", rec.Metadata.LatencyMs)
	}
	if rec.Metadata.Cached {
		b.WriteString(" (cached)")
	}
	b.WriteString(".\n\n")
	if len(rec.Fallbacks) > 0 {
		fmt.Fprintf(&b, "> Filled with defaults: %s\n\n", strings.Join(rec.Fallbacks, "; "))
	}
	if rec.Result != nil {
		writeAnalysis(&b, rec.Result)
	}
	return b.String()
}

// AbandonedReport formats a session archived for later analysis.
func AbandonedReport(a *domain.AbandonedSession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Abandoned session %s\n\n", a.SessionID)
	fmt.Fprintf(&b, "Left at **%s** on %s.\n\n", a.AbandonedAt, a.CreatedAt.Format("2006-01-02 15:04"))
	if a.Venue != "" {
		fmt.Fprintf(&b, "Venue: %s, target %d min.\n\n", a.Venue, a.DurationTarget)
	}
	if a.Prescription != nil {
		writePlan(&b, a.Prescription)
	}
	return b.String()
}

func writePlan(b *strings.Builder, p *domain.Prescription) {
	title := p.SessionName
	if title == "" {
		title = p.Type
	}
	fmt.Fprintf(b, "## Plan: %s\n\n", title)
	if p.DurationTarget > 0 {
		fmt.Fprintf(b, "Target %d min", p.DurationTarget)
		if len(p.Focus) > 0 {
			fmt.Fprintf(b, ", focus on %s", strings.Join(p.Focus, ", "))
		}
		b.WriteString(".\n\n")
	}
	if len(p.Exercises) == 0 {
		return
	}
	b.WriteString("| Exercise | Sets | Reps | Load | Rest |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, ex := range p.Exercises {
		fmt.Fprintf(b, "| %s | %d | %d | %s | %ds |\n", ex.Name, ex.Sets, ex.Reps, formatLoad(ex.Load), ex.Rest)
	}
	b.WriteString("\n")
	if p.CoachRationale != "" {
		fmt.Fprintf(b, "_%s_\n\n", p.CoachRationale)
	}
}

func writeAnalysis(b *strings.Builder, a *domain.AnalysisResult) {
	b.WriteString("## Analysis\n\n")
	if sa := a.SessionAnalysis; sa != nil && sa.OverallPerformance != nil {
		op := sa.OverallPerformance
		fmt.Fprintf(b, "**Score:** %.0f (%s)\n\n%s\n\n", op.Score, op.Rating, op.Summary)
	}
	if pi := a.PersonalizedInsights; pi != nil {
		writeList(b, "Strengths", pi.Strengths)
		writeList(b, "To improve", pi.AreasToImprove)
	}
	var earned []string
	for _, ach := range a.Achievements {
		if ach.Earned {
			earned = append(earned, ach.Title)
		}
	}
	writeList(b, "Achievements", earned)
	if a.CoachRationale != "" {
		fmt.Fprintf(b, "> %s\n\n", a.CoachRationale)
	}
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func formatLoad(l domain.Load) string {
	switch len(l) {
	case 0:
		return "-"
	case 1:
		return strconv.FormatFloat(l[0], 'f', -1, 64)
	}
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, "/")
}
