// Package inmemdb is a process-local store used by tests and the memory driver.
package inmemdb

import (
	"sort"
	"strings"
	"sync"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/student"
	"github.com/attendify/attendify/core/user"
)

type (
	DB struct {
		user       *userTable
		student    *studentTable
		attendance *attendanceTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	studentTable struct {
		table map[string]*student.Student
		mutex sync.RWMutex
	}

	// attendanceTable holds records and closure markers under one lock so that
	// closing a day and mutating its records exclude each other.
	attendanceTable struct {
		records  map[string]attendance.Record // {RecordKey: Record}
		closures map[string]attendance.Closure
		mutex    sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:    &userTable{table: make(map[string]*user.User)},
		student: &studentTable{table: make(map[string]*student.Student)},
		attendance: &attendanceTable{
			records:  make(map[string]attendance.Record),
			closures: make(map[string]attendance.Closure),
		},
	}
}

// lessFunc builds a sort function applying orderings in turn; field returns the sort key of item i for a field.
func lessFunc(orderings []core.DBOrdering, field func(i int, name string) string) func(i, j int) bool {
	return func(i, j int) bool {
		for _, ord := range orderings {
			fi, fj := field(i, ord.Field), field(j, ord.Field)
			if fi == fj {
				continue
			}
			if ord.Ascending {
				return fi < fj
			}
			return fi > fj
		}
		return false
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func sortRecords(records []attendance.Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })
}
