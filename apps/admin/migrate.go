package main

import "context"

func (cli *commandLine) migrate(ctx context.Context, command string, args ...string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return gooseRunFunc(ctx, cli.db, command, args...)
}
