package main

import (
	"context"
	"errors"

	"github.com/attendify/attendify/storage/database"
)

var (
	gooseRunFunc = database.Migrate // mockable

	errMigrateUnsupported = errors.New("migrations only apply to the postgres driver")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errMigrateUnsupported
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(context.Background(), cli.db, args[0], arguments...)
}
