package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/attendify/attendify/apps/api/echo"
	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/scan"
	"github.com/attendify/attendify/core/student"
	"github.com/attendify/attendify/core/user"
	"github.com/attendify/attendify/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server     *Server
	usrRepo    user.Repository
	students   *student.Service
	attendance *attendance.Service
	scans      *scan.Manager
	observed   *[]scan.View
}

type observerFunc func(view scan.View)

func (f observerFunc) ScanFinished(view scan.View) { f(view) }

func setup(t *testing.T) testApp {
	t.Helper()

	conf := &core.Config{AppName: "Attendify", SecretKey: "secret", TestMode: true}
	conf.Server.JWTExpirationDelta = 10 * time.Minute
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)

	db := inmemdb.Open()
	app := testApp{usrRepo: inmemdb.NewUserRepository(db), observed: new([]scan.View)}
	app.students = student.NewService(inmemdb.NewStudentRepository(db))
	app.attendance = attendance.NewService(inmemdb.NewAttendanceRepository(db), app.students, attendance.Options{})
	app.scans = scan.NewManager(Resolver(app.attendance), time.Minute)

	app.server = NewServer(&Deps{
		Conf:          conf,
		Logger:        nopLogger{},
		Validate:      validate,
		Translator:    translator,
		UserSvc:       user.NewService(app.usrRepo),
		StudentSvc:    app.students,
		AttendanceSvc: app.attendance,
		Scans:         app.scans,
		ScanObserver: observerFunc(func(view scan.View) {
			*app.observed = append(*app.observed, view)
		}),
	})
	return app
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (app testApp) serve(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantCode == 0 {
				tt.wantCode = http.StatusOK
			}
			checkCodeAndData(t, tt, app.serve(tt))
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func (app testApp) createUser(t *testing.T, name, uname, pwd string, isActive bool, roles ...string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     uname + "@test.eg",
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		require.NoError(t, usr.SetPassword(pwd))
	}
	usr, err := app.usrRepo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func (app testApp) createStudent(t *testing.T, name, phone string) student.Student {
	t.Helper()
	std, err := app.students.Create(context.Background(), student.NewStudent{Name: name, Phone: phone})
	require.NoError(t, err)
	return std
}

func (app testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := app.server.Auth().UserToken(usr)
	require.NoError(t, err)
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
