package main

import (
	"context"
	"time"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, isAdmin bool) (user.User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if err != user.ErrNotFound {
			return user.User{}, err
		}
		now := time.Now().UTC()
		usr = user.User{
			Username:  uname,
			Email:     email,
			Roles:     []string{user.RoleCustomer},
			CreatedAt: now,
		}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	if isAdmin {
		usr.Roles = []string{user.RoleAdmin}
	}
	usr.SetActive(true)
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}
	usr.UpdatedAt = time.Now().UTC()
	return cli.usrRepo.UpdateOrCreateUser(ctx, usr)
}
