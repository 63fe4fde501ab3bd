package main

import (
	"context"
	"log"
	"os"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/student"
	logsvc "github.com/attendify/attendify/services/logger"
	"github.com/attendify/attendify/storage/database"
	inmemdb "github.com/attendify/attendify/storage/database/inmem"
	sqlxrepos "github.com/attendify/attendify/storage/database/sqlx"
	firestorerepos "github.com/attendify/attendify/storage/firestore"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	cli, closeStore, err := newCommandLine(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal("setting up storage", err)
	}

	err = cli.run(os.Args)
	if cerr := closeStore(); cerr != nil {
		logger.Error("closing storage", cerr)
	}
	logger.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}

// newCommandLine opens the configured store. Postgres is not migrated here; see the migrate command.
func newCommandLine(ctx context.Context, conf *core.Config, logger core.Logger) (*commandLine, func() error, error) {
	cli := &commandLine{conf: conf, logger: logger}
	var (
		students   student.Repository
		records    attendance.Repository
		closeStore = func() error { return nil }
	)

	switch conf.Database.Driver {
	case core.DriverFirestore:
		client, err := firestorerepos.Open(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		cli.usrRepo = firestorerepos.NewUserRepository(client)
		students = firestorerepos.NewStudentRepository(client)
		records = firestorerepos.NewAttendanceRepository(client)
		closeStore = client.Close

	case core.DriverMemory:
		db := inmemdb.Open()
		cli.usrRepo = inmemdb.NewUserRepository(db)
		students = inmemdb.NewStudentRepository(db)
		records = inmemdb.NewAttendanceRepository(db)

	default:
		db, err := database.Open(conf)
		if err != nil {
			return nil, nil, err
		}
		if err = database.Ping(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		cli.db = db.DB
		cli.usrRepo = sqlxrepos.NewUserRepository(db)
		students = sqlxrepos.NewStudentRepository(db)
		records = sqlxrepos.NewAttendanceRepository(db)
		closeStore = db.Close
	}

	cli.attendance = attendance.NewService(records, student.NewService(students), attendance.Options{
		DefaultPresentRating: conf.Attendance.DefaultPresentRating,
		Location:             conf.Attendance.Location(),
	})
	return cli, closeStore, nil
}
