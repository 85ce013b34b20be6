package compute

import "github.com/noah-isme/openacademy-api/internal/models"

// Check inspects a record after recomputation. Run returns nil when the record passes.
type Check[T any] struct {
	Name     string
	Kind     models.NoticeKind
	Triggers []string
	Run      func(rec *T) *models.Notice
}

// Outcome is the tagged result of evaluating checks against one record.
type Outcome struct {
	Advisories []models.Notice
	Blocking   *models.Notice
}

// Blocked reports whether a blocking check failed.
func (o Outcome) Blocked() bool {
	return o.Blocking != nil
}

// Notices flattens the outcome for callers that only preview a record.
func (o Outcome) Notices() []models.Notice {
	notices := append([]models.Notice(nil), o.Advisories...)
	if o.Blocking != nil {
		notices = append(notices, *o.Blocking)
	}
	return notices
}

// Checks is an ordered list of checks for one record type.
type Checks[T any] []Check[T]

// Evaluate runs every check triggered by changed. When changed is empty all checks run.
func (cs Checks[T]) Evaluate(rec *T, changed ...string) Outcome {
	var out Outcome
	for _, check := range cs {
		if len(changed) > 0 && !intersects(check.Triggers, changed) {
			continue
		}
		notice := check.Run(rec)
		if notice == nil {
			continue
		}
		notice.Kind = check.Kind
		notice.Check = check.Name
		if check.Kind == models.NoticeBlocking {
			if out.Blocking == nil {
				out.Blocking = notice
			}
			continue
		}
		out.Advisories = append(out.Advisories, *notice)
	}
	return out
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
