package usecase

import (
	"context"
	"fmt"

	"embreduce/internal/adapter/reducer"
	"embreduce/internal/adapter/report"
	"embreduce/internal/domain"
)

// ExportResult names the files written by ExtractEmbeddings.
type ExportResult struct {
	Full    string
	Reduced string
	Spec    domain.ReductionSpec
	Pairs   int
}

// ExtractEmbeddings writes every usable pair twice as JSON lines: once with
// the full embeddings and once reduced by spec. A quantizing spec exports the
// integer codes of the retained dimensions instead of real values.
func ExtractEmbeddings(ctx context.Context, s *Session, spec domain.ReductionSpec, dir string, compress bool, workers int) (*ExportResult, error) {
	r, err := reducer.New(spec)
	if err != nil {
		return nil, stage("reduce", err)
	}

	full, err := writeExport(s, dir, "embeddings_full.json", compress, func(line *report.EmbeddingLine, p domain.Pair) error {
		line.EmbA, line.EmbB = s.Corpus.Vectors[p.A], s.Corpus.Vectors[p.B]
		return nil
	})
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("embeddings_%d.json", r.OutputDimension())
	var fill func(*report.EmbeddingLine, domain.Pair) error
	if spec.Quant != nil {
		fill = func(line *report.EmbeddingLine, p domain.Pair) error {
			var err error
			if line.CodesA, err = r.Encode(s.Corpus.Vectors[p.A]); err != nil {
				return err
			}
			line.CodesB, err = r.Encode(s.Corpus.Vectors[p.B])
			return err
		}
	} else {
		reduced, err := reducer.Apply(ctx, r, s.Corpus.Vectors, workers)
		if err != nil {
			return nil, stage("reduce", err)
		}
		fill = func(line *report.EmbeddingLine, p domain.Pair) error {
			line.EmbA, line.EmbB = reduced[p.A], reduced[p.B]
			return nil
		}
	}
	red, err := writeExport(s, dir, name, compress, fill)
	if err != nil {
		return nil, err
	}
	return &ExportResult{Full: full, Reduced: red, Spec: spec, Pairs: len(s.Corpus.Pairs)}, nil
}

func writeExport(s *Session, dir, name string, compress bool, fill func(*report.EmbeddingLine, domain.Pair) error) (string, error) {
	e, err := report.CreateExport(dir, name, compress)
	if err != nil {
		return "", stage("export", err)
	}
	for i, p := range s.Corpus.Pairs {
		line := report.EmbeddingLine{
			Pair:    i,
			Genuine: p.Genuine,
			A:       s.Records.Record(p.A).ID,
			B:       s.Records.Record(p.B).ID,
		}
		if err := fill(&line, p); err != nil {
			e.Close()
			return "", stage("reduce", err)
		}
		if err := e.Write(line); err != nil {
			e.Close()
			return "", stage("export", err)
		}
	}
	if err := e.Close(); err != nil {
		return "", stage("export", err)
	}
	return e.Path, nil
}
