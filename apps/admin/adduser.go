package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin, isTeacher bool) error {
	var usr user.User
	var err error
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}}); err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: time.Now().UTC(),
		}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	switch {
	case isAdmin:
		usr.Roles = user.AllRoles
	case isTeacher:
		usr.Roles = []string{user.RoleTeacher}
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	cli.logger.Info("user saved", map[string]interface{}{"username": usr.Username, "roles": usr.Roles})
	return nil
}
