package compute

import "github.com/noah-isme/openacademy-api/internal/models"

// Course field names.
const (
	FieldSessions     = "sessions"
	FieldSessionCount = "session_count"
)

// CourseGraph holds the derived fields of a course.
var CourseGraph = MustGraph(
	Rule[models.CourseSessions]{
		Field:     FieldSessionCount,
		DependsOn: []string{FieldSessions},
		Compute: func(cs *models.CourseSessions) {
			cs.Course.SessionCount = len(cs.SessionIDs)
		},
	},
)

// AffectedCourses follows the session→course edge: it returns the courses whose sessions set
// changed when a session moved from before to after. A nil before means the session was
// created, a nil after means it was deleted.
func AffectedCourses(before, after *models.Session) []string {
	switch {
	case before == nil && after == nil:
		return nil
	case before == nil:
		return nonEmpty(after.CourseID)
	case after == nil:
		return nonEmpty(before.CourseID)
	case before.CourseID == after.CourseID:
		return nil
	default:
		return nonEmpty(before.CourseID, after.CourseID)
	}
}

func nonEmpty(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
