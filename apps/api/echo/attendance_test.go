package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/attendify/attendify/apps/api/echo"
	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/user"
	exportsvc "github.com/attendify/attendify/services/export"
)

const day = "2024-03-10"

func Test_attendanceApi_dayLifecycle(t *testing.T) {
	app := setup(t)
	adminToken := app.token(t, app.createUser(t, "Admin", "admin", "", true, user.RoleAdmin))
	teacherToken := app.token(t, app.createUser(t, "Teacher", "teacher", "", true, user.RoleTeacher))

	a := app.createStudent(t, "A", "01012345678")
	b := app.createStudent(t, "B", "01198765432")
	c := app.createStudent(t, "C", "01211111111")

	studentPath := func(id, field string) string {
		return "/v1/attendance/" + day + "/students/" + id + "/" + field
	}
	status := func(s attendance.Status) []byte { return marchallObj(t, StatusRequest{Status: s}) }
	rating := func(r int) []byte { return marchallObj(t, RatingRequest{Rating: r}) }
	entry := func(id string, s attendance.Status, r int) []byte {
		return marchallObj(t, EntryResponse{Date: day, StudentID: id, Entry: attendance.Entry{Status: s, Rating: r}})
	}
	dayClosed := marchallObj(t, httpErr{Error: attendance.ErrDayClosed.Error()})

	app.run(t, []httpTest{
		{
			name: "empty ledger", path: "/v1/attendance/" + day, token: teacherToken,
			wantData: marchallObj(t, attendance.Ledger{Date: day, Entries: map[string]attendance.Entry{}}),
		},
		{
			name: "invalid date", path: "/v1/attendance/10-03-2024", token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"date": attendance.ErrInvalidDate.Error()}),
		},
		{
			name: "mark a present", method: http.MethodPut, path: studentPath(a.ID, "status"), token: teacherToken,
			body: status(attendance.StatusPresent), wantData: entry(a.ID, attendance.StatusPresent, 0),
		},
		{
			name: "rate a", method: http.MethodPut, path: studentPath(a.ID, "rating"), token: teacherToken,
			body: rating(7), wantData: entry(a.ID, attendance.StatusPresent, 7),
		},
		{
			name: "rating out of range", method: http.MethodPut, path: studentPath(a.ID, "rating"), token: teacherToken,
			body: rating(11), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"rating": attendance.ErrInvalidRating.Error()}),
		},
		{
			name: "invalid status", method: http.MethodPut, path: studentPath(b.ID, "status"), token: teacherToken,
			body: status("late"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": attendance.ErrInvalidStatus.Error()}),
		},
		{
			name: "mark b absent", method: http.MethodPut, path: studentPath(b.ID, "status"), token: teacherToken,
			body: status(attendance.StatusAbsent), wantData: entry(b.ID, attendance.StatusAbsent, 0),
		},
		{
			name: "rating an absent student", method: http.MethodPut, path: studentPath(b.ID, "rating"), token: teacherToken,
			body: rating(5), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: attendance.ErrInvalidState.Error()}),
		},
		{
			name: "unknown student", method: http.MethodPut, path: studentPath("nope", "status"), token: teacherToken,
			body: status(attendance.StatusPresent), wantCode: http.StatusNotFound,
		},
		{
			name: "teacher cannot close", method: http.MethodPost, path: "/v1/attendance/" + day + "/close", token: teacherToken,
			wantCode: http.StatusForbidden,
		},
		{
			name: "close", method: http.MethodPost, path: "/v1/attendance/" + day + "/close", token: adminToken,
			wantData: marchallObj(t, attendance.Ledger{Date: day, Closed: true, Entries: map[string]attendance.Entry{
				a.ID: {Status: attendance.StatusPresent, Rating: 7},
				b.ID: {Status: attendance.StatusAbsent, Rating: 0},
				c.ID: {Status: attendance.StatusAbsent, Rating: 0},
			}}),
		},
		{
			name: "close again", method: http.MethodPost, path: "/v1/attendance/" + day + "/close", token: adminToken,
			wantCode: http.StatusConflict, wantData: dayClosed,
		},
		{
			name: "status after close", method: http.MethodPut, path: studentPath(c.ID, "status"), token: teacherToken,
			body: status(attendance.StatusPresent), wantCode: http.StatusConflict, wantData: dayClosed,
		},
		{
			name: "rating after close", method: http.MethodPut, path: studentPath(a.ID, "rating"), token: teacherToken,
			body: rating(3), wantCode: http.StatusConflict, wantData: dayClosed,
		},
		{
			name: "dates", path: "/v1/attendance/dates", token: teacherToken,
			wantData: marchallList(t, attendance.DateSummary{Date: day, Present: 1, Absent: 2, Closed: true}),
		},
	})

	summaries, err := app.attendance.Dates(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	t.Run("date report", func(t *testing.T) {
		require.NoError(t, app.students.Delete(context.Background(), c.ID))

		rec := app.serve(httpTest{path: "/v1/attendance/dates/" + day, token: teacherToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report attendance.DateReport
		decode(t, rec, &report)
		assert.True(t, report.Closed)
		require.NotNil(t, report.EndedAt)
		require.Len(t, report.Rows, 3)
		// deleted students keep their records and sort first with an empty name
		assert.Equal(t, c.ID, report.Rows[0].StudentID)
		assert.True(t, report.Rows[0].StudentDeleted)
		assert.Equal(t, "A", report.Rows[1].StudentName)
		assert.Equal(t, "B", report.Rows[2].StudentName)
	})

	t.Run("export", func(t *testing.T) {
		rec := app.serve(httpTest{path: "/v1/attendance/dates/" + day + "/export", token: teacherToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, exportsvc.ContentType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), exportsvc.Filename(day))
		assert.NotEmpty(t, rec.Body.Bytes())
	})
}

func Test_attendanceApi_scan(t *testing.T) {
	app := setup(t)
	token := app.token(t, app.createUser(t, "Teacher", "teacher", "", true, user.RoleTeacher))
	a := app.createStudent(t, "A", "01012345678")

	scan := func(raw string) []byte { return marchallObj(t, ScanRequest{Raw: raw}) }

	app.run(t, []httpTest{
		{
			name: "unknown scan key", method: http.MethodPost, path: "/v1/attendance/" + day + "/scan", token: token,
			body: scan("01099999999"), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "no student found with this phone number"}),
		},
		{
			name: "key is not normalized", method: http.MethodPost, path: "/v1/attendance/" + day + "/scan", token: token,
			body: scan(" 01012345678"), wantCode: http.StatusNotFound,
		},
		{
			name: "known scan key", method: http.MethodPost, path: "/v1/attendance/" + day + "/scan", token: token,
			body: scan("01012345678"),
			wantData: marchallObj(t, ScanResponse{
				Date: day, Student: a, Entry: attendance.Entry{Status: attendance.StatusPresent},
			}),
		},
		{
			name: "ledger", path: "/v1/attendance/" + day, token: token,
			wantData: marchallObj(t, attendance.Ledger{Date: day, Entries: map[string]attendance.Entry{
				a.ID: {Status: attendance.StatusPresent},
			}}),
		},
	})
}

func Test_attendanceApi_stats(t *testing.T) {
	app := setup(t)
	token := app.token(t, app.createUser(t, "Teacher", "teacher", "", true, user.RoleTeacher))
	a := app.createStudent(t, "A", "01012345678")
	b := app.createStudent(t, "B", "01198765432")
	app.createStudent(t, "C", "01211111111")

	ctx := context.Background()
	today := app.attendance.Today()
	_, err := app.attendance.SetStatus(ctx, a.ID, attendance.StatusPresent, today)
	require.NoError(t, err)
	_, err = app.attendance.SetRating(ctx, a.ID, 9, today)
	require.NoError(t, err)
	_, err = app.attendance.SetStatus(ctx, b.ID, attendance.StatusAbsent, today)
	require.NoError(t, err)

	app.run(t, []httpTest{
		{
			name: "today", path: "/v1/stats", token: token,
			wantData: marchallObj(t, attendance.Stats{Date: today, TotalStudents: 3, PresentToday: 1, AverageRating: 4.5}),
		},
		{
			name: "today alias", path: "/v1/attendance/today", token: token,
			wantData: marchallObj(t, attendance.Ledger{Date: today, Entries: map[string]attendance.Entry{
				a.ID: {Status: attendance.StatusPresent, Rating: 9},
				b.ID: {Status: attendance.StatusAbsent},
			}}),
		},
	})
}
