package dig_container

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/attendify/attendify/apps/api/echo"
	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/scan"
	"github.com/attendify/attendify/core/student"
	"github.com/attendify/attendify/core/user"
	emailsvc "github.com/attendify/attendify/services/email"
	logsvc "github.com/attendify/attendify/services/logger"
	metricsvc "github.com/attendify/attendify/services/metrics"
	reportsvc "github.com/attendify/attendify/services/report"
	schedulersvc "github.com/attendify/attendify/services/scheduler"
	"github.com/attendify/attendify/storage/database"
	inmemdb "github.com/attendify/attendify/storage/database/inmem"
	sqlxrepos "github.com/attendify/attendify/storage/database/sqlx"
	firestorerepos "github.com/attendify/attendify/storage/firestore"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Store holds the repositories of the configured driver.
type Store struct {
	Users      user.Repository
	Students   student.Repository
	Attendance attendance.Repository

	closer io.Closer
}

// Close releases the underlying connection, if any.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func setUpPostgres(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(ctx, db.DB); err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db.DB, "up"); err != nil {
		return nil, err
	}
	return db, nil
}

// NewStore opens the storage backend selected by conf.Database.Driver.
func NewStore(conf *core.Config, loggerParam DBLoggerParam) *Store {
	ctx := context.Background()
	logger := loggerParam.Logger

	switch conf.Database.Driver {
	case core.DriverPostgres:
		db, err := setUpPostgres(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		return &Store{
			Users:      sqlxrepos.NewUserRepository(db),
			Students:   sqlxrepos.NewStudentRepository(db),
			Attendance: sqlxrepos.NewAttendanceRepository(db),
			closer:     db,
		}

	case core.DriverFirestore:
		client, err := firestorerepos.Open(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up firestore: %v", err), err)
		}
		return &Store{
			Users:      firestorerepos.NewUserRepository(client),
			Students:   firestorerepos.NewStudentRepository(client),
			Attendance: firestorerepos.NewAttendanceRepository(client),
			closer:     client,
		}

	case core.DriverMemory:
		logger.Warn("using the in-memory store: data will not survive restarts")
		db := inmemdb.Open()
		return &Store{
			Users:      inmemdb.NewUserRepository(db),
			Students:   inmemdb.NewStudentRepository(db),
			Attendance: inmemdb.NewAttendanceRepository(db),
		}
	}

	logger.Fatal(fmt.Sprintf("unknown database driver %q", conf.Database.Driver))
	return nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, os.Stdout, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newUserService(store *Store) user.Service {
	return user.NewService(store.Users)
}

func newStudentService(store *Store) *student.Service {
	return student.NewService(store.Students)
}

func newAttendanceService(conf *core.Config, store *Store, students *student.Service, metrics *metricsvc.Metrics) *attendance.Service {
	return attendance.NewService(store.Attendance, students, attendance.Options{
		DefaultPresentRating: conf.Attendance.DefaultPresentRating,
		Location:             conf.Attendance.Location(),
		Listeners:            []attendance.Listener{metrics},
	})
}

func newClosureReporter(
	conf *core.Config,
	svc *attendance.Service,
	mailer core.EmailService,
	logger core.Logger,
) *reportsvc.ClosureReporter {
	reporter := reportsvc.NewClosureReporter(svc, mailer, logger, conf)
	svc.AddListener(reporter)
	return reporter
}

func newScanManager(conf *core.Config, svc *attendance.Service) *scan.Manager {
	return scan.NewManager(echoapi.Resolver(svc), conf.Server.ScanSessionTTL)
}

func newScheduler(
	conf *core.Config,
	svc *attendance.Service,
	scans *scan.Manager,
	metrics *metricsvc.Metrics,
	logger core.Logger,
) *schedulersvc.Scheduler {
	return schedulersvc.New(conf, svc, scans, metrics.SetOpenScanSessions, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	return validate
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type serverParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       user.Service
	StudentSvc    *student.Service
	AttendanceSvc *attendance.Service
	Scans         *scan.Manager
	Metrics       *metricsvc.Metrics
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Deps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		StudentSvc:    p.StudentSvc,
		AttendanceSvc: p.AttendanceSvc,
		Scans:         p.Scans,
		ScanObserver:  p.Metrics,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(NewStore))
	must(c.Provide(newEmailService))
	must(c.Provide(metricsvc.New))
	must(c.Provide(newUserService))
	must(c.Provide(newStudentService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newClosureReporter))
	must(c.Provide(newScanManager))
	must(c.Provide(newScheduler))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
