package main

import (
	"context"

	"github.com/nagiyu/niconico-mylist-assistant/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Auto samples non-skipped bookmarks and submits them as a registration job.
//
// The job runs on the worker; its result arrives later as a notification.
func (r *Runner) Auto(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")
	if email == "" {
		email = r.config.Credentials.Niconico.Email
	}
	password := cmd.String("password")
	if password == "" {
		password = r.config.Credentials.Niconico.Password
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	r.logger.Info("starting auto registration", "count", cmd.Int("count"))

	prog, stop := r.progress()
	result, err := r.engine(s).AutoRegister(ctx, prog, tasks.AutoRegisterRequest{
		Count:    cmd.Int("count"),
		Email:    email,
		Password: password,
		Title:    cmd.String("title"),
	})
	stop()
	if err != nil {
		return err
	}

	return r.emit(cmd, result, func() error {
		r.writePlain("\n")
		r.writePlainHeader("Registration Submitted")
		r.writePlain("Job: %s\n", result.JobID)
		r.writePlain("%s\n", result.Message)
		r.writePlain("Videos (%d):\n", len(result.IDs))
		for _, id := range result.IDs {
			r.writePlain("  - %s\n", id)
		}
		r.writePlain("\nRun 'nma notifications' to see the result.\n")
		return nil
	})
}
