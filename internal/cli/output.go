package cli

import (
	"embreduce/internal/domain"
)

// resultColumns are the verification metrics appended to every result row.
var resultColumns = []string{"accuracy", "threshold", "fp", "fn", "far", "frr", "fdr", "for", "auc"}

func columns(lead ...string) []string {
	return append(lead, resultColumns...)
}

func values(r domain.EvaluationResult, lead ...any) []any {
	return append(lead,
		r.Accuracy,
		r.Threshold,
		r.FalseAccepts,
		r.FalseRejects,
		r.FAR,
		r.FRR,
		r.FalseDiscoveryRate,
		r.FalseOmissionRate,
		r.AUC,
	)
}

// writeBaseline emits the full-embedding result as a comment line.
func writeBaseline(env *runEnv, r domain.EvaluationResult) error {
	return env.out.Comment("baseline accuracy=%v threshold=%v auc=%v pairs=%d",
		r.Accuracy, r.Threshold, r.AUC, r.Genuine+r.Impostor)
}
