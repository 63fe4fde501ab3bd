package main

import (
	"context"
	"fmt"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
)

// closedBy identifies closures run from the command line.
const closedBy = "cli"

func (cli *commandLine) closeDay(date string) error {
	if date = core.CleanString(date); date == "" {
		date = cli.attendance.Today()
	}
	ledger, err := cli.attendance.CloseDay(context.Background(), date, closedBy)
	if err != nil {
		return err
	}
	cli.logger.Info(fmt.Sprintf("closed %s", date), map[string]interface{}{
		"present": ledger.Count(attendance.StatusPresent),
		"absent":  ledger.Count(attendance.StatusAbsent),
	})
	return nil
}
