package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

func (cli *commandLine) overdue(ctx context.Context, notify bool) error {
	now := time.Now().UTC()
	rentals, err := cli.rentalSvc.Overdue(ctx, now)
	if err != nil {
		return err
	}
	if len(rentals) == 0 {
		fmt.Fprintln(cli.out, "no overdue rentals")
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tCUSTOMER\tEND DATE\tHOURS LATE\tTOTAL")
	for _, r := range rentals {
		hours := int(now.Sub(r.EndDate).Hours())
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.Code, r.UserID, r.EndDate.Format(time.RFC3339), hours, r.Total.StringFixed(2))
	}
	if err = w.Flush(); err != nil {
		return err
	}

	if notify {
		sent := cli.rentalSvc.SendOverdueReminders(ctx, rentals)
		fmt.Fprintf(cli.out, "%d reminder(s) sent\n", sent)
	}
	return nil
}
