package platform

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"devschool-client/internal/course"
)

// ListCourses GET cursos
func (c *Client) ListCourses(ctx context.Context) ([]course.Course, error) {
	var out []course.Course
	if err := c.do(ctx, http.MethodGet, "cursos", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCourse GET cursos/{id}
func (c *Client) GetCourse(ctx context.Context, id int64) (*course.Course, error) {
	var out course.Course
	if err := c.do(ctx, http.MethodGet, "cursos/"+strconv.FormatInt(id, 10), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enroll POST inscripciones/{cursoId}/inscribirme
func (c *Client) Enroll(ctx context.Context, userID, courseID int64) (*course.Enrollment, error) {
	path := "inscripciones/" + strconv.FormatInt(courseID, 10) + "/inscribirme"
	body := map[string]int64{"usuarioId": userID}
	var out course.Enrollment
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEnrollments GET inscripciones/usuario/{usuarioId}
func (c *Client) ListEnrollments(ctx context.Context, userID int64) ([]course.Enrollment, error) {
	var out []course.Enrollment
	path := "inscripciones/usuario/" + strconv.FormatInt(userID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProgressByUser GET progreso/usuario/{usuarioId}
func (c *Client) ProgressByUser(ctx context.Context, userID int64) ([]course.CourseProgress, error) {
	var out []course.CourseProgress
	path := "progreso/usuario/" + strconv.FormatInt(userID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProgressByCourse GET progreso/{cursoId}?usuarioId=
func (c *Client) ProgressByCourse(ctx context.Context, courseID, userID int64) (*course.CourseProgress, error) {
	query := url.Values{}
	query.Set("usuarioId", strconv.FormatInt(userID, 10))
	var out course.CourseProgress
	if err := c.do(ctx, http.MethodGet, "progreso/"+strconv.FormatInt(courseID, 10), query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteLesson POST progreso/leccion-completada
func (c *Client) CompleteLesson(ctx context.Context, req course.LessonCompletion) (*course.CourseProgress, error) {
	if req.Answers == nil {
		req.Answers = []course.QuestionAnswer{}
	}
	var out course.CourseProgress
	if err := c.do(ctx, http.MethodPost, "progreso/leccion-completada", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LessonAnswers GET progreso/respuestas/{usuarioId}/{leccionId}
// 返回用户在该课时已保存的作答
func (c *Client) LessonAnswers(ctx context.Context, userID, lessonID int64) ([]course.QuestionAnswer, error) {
	var out []course.QuestionAnswer
	path := "progreso/respuestas/" + strconv.FormatInt(userID, 10) + "/" + strconv.FormatInt(lessonID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
