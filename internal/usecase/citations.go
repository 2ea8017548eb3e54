package usecase

import (
	"context"

	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/adapter"
	"deep-research-service/internal/infra/logging"
)

// messageAnnotations gathers a message's annotations regardless of where the
// provider put them: top level or nested in text content parts.
func messageAnnotations(m adapter.Message) []adapter.Annotation {
	anns := append([]adapter.Annotation(nil), m.Annotations...)
	for _, p := range m.Content.Parts {
		if p.Text != nil {
			anns = append(anns, p.Text.Annotations...)
		}
	}
	return anns
}

// citationFromAnnotation normalizes one annotation into a citation record.
// Unrecognized kinds report ok=false and are skipped.
func citationFromAnnotation(ann adapter.Annotation) (model.Citation, bool) {
	switch ann.Type {
	case adapter.AnnotationURLCitation:
		c := model.Citation{ID: ann.Text}
		if ann.URLCitation != nil {
			c.URL = ann.URLCitation.URL
			c.Title = ann.URLCitation.Title
		}
		return c, true
	case adapter.AnnotationFileCitation:
		c := model.Citation{ID: ann.Text}
		if ann.FileCitation != nil {
			c.URL = ann.FileCitation.FileID
			c.Title = ann.FileCitation.Quote
		}
		return c, true
	}
	return model.Citation{}, false
}

// extractAndStoreCitations persists one citation step per recognized
// annotation. A persistence failure for one message never aborts
// extraction for the rest.
func (s *statusUC) extractAndStoreCitations(ctx context.Context, jobID string, msgs []adapter.Message) {
	log := logging.With(logging.WithJobID(ctx, jobID), s.log)
	for _, msg := range msgs {
		for _, ann := range messageAnnotations(msg) {
			c, ok := citationFromAnnotation(ann)
			if !ok {
				continue
			}
			if err := s.jobs.AddJobStep(ctx, jobID, model.StepCitation, c.StepDetails()); err != nil {
				log.Warn().Err(err).Msg("could not record citation step")
			}
		}
	}
}
