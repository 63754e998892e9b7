package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bookferry/bookferry/pkg/downloads"
	"github.com/bookferry/bookferry/pkg/jobs"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/bookferry/bookferry/pkg/worker"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run one post-processing pass now",
	Action: func(c *cli.Context) error {
		return runJob(c, models.JobTypePass)
	},
}

var sweepCommand = &cli.Command{
	Name:  "sweep",
	Usage: "fail snatched requests older than stale_after",
	Action: func(c *cli.Context) error {
		return runJob(c, models.JobTypeSweep)
	},
}

func runJob(c *cli.Context, jobType string) error {
	e, err := openEnv(c.Context)
	if err != nil {
		return err
	}
	defer e.Close()

	w, err := e.worker()
	if err != nil {
		return err
	}
	job, err := w.RunOnce(c.Context, jobType, models.TriggerManual)
	if errors.Is(err, worker.ErrLocked) {
		return cli.Exit("bookferry is already running against these download directories", 2)
	}
	if err != nil {
		return err
	}

	switch data := job.DataParsed.(type) {
	case *models.JobPassData:
		fmt.Printf("Pass %d: %d processed, %d failed, %d stale, %d imported\n",
			job.ID, data.Processed, data.Failed, data.Stale, data.Imported)
	case *models.JobSweepData:
		fmt.Printf("Sweep %d: %d stale\n", job.ID, data.Stale)
	}
	return nil
}

var requestsCommand = &cli.Command{
	Name:  "requests",
	Usage: "list download requests",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "status", Usage: "only show requests with these statuses"},
		&cli.IntFlag{Name: "limit", Value: 25},
	},
	Action: func(c *cli.Context) error {
		e, err := openEnv(c.Context)
		if err != nil {
			return err
		}
		defer e.Close()

		limit := c.Int("limit")
		reqs, err := requests.NewService(e.db).ListRequests(c.Context, requests.ListRequestsOptions{
			Limit:    &limit,
			Statuses: c.StringSlice("status"),
		})
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(reqs))
		for _, r := range reqs {
			rows = append(rows, []string{
				strconv.Itoa(r.ID),
				r.ItemID,
				r.MediaKind,
				r.Title,
				r.Status,
				r.Backend,
				humanize.Time(r.SnatchedAt),
			})
		}
		fmt.Println(renderTable(
			[]string{"ID", "Item", "Kind", "Title", "Status", "Backend", "Snatched"},
			rows,
			[]columnAlignment{alignRight},
		))
		return nil
	},
}

var downloadsCommand = &cli.Command{
	Name:  "downloads",
	Usage: "show successful downloads per provider",
	Action: func(c *cli.Context) error {
		e, err := openEnv(c.Context)
		if err != nil {
			return err
		}
		defer e.Close()

		counts, err := downloads.NewService(e.db).ListCounts(c.Context)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(counts))
		for _, dc := range counts {
			rows = append(rows, []string{dc.Provider, humanize.Comma(int64(dc.Count))})
		}
		fmt.Println(renderTable([]string{"Provider", "Downloads"}, rows, []columnAlignment{alignLeft, alignRight}))
		return nil
	},
}

var passesCommand = &cli.Command{
	Name:  "passes",
	Usage: "list recent passes and sweeps",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 10},
	},
	Action: func(c *cli.Context) error {
		e, err := openEnv(c.Context)
		if err != nil {
			return err
		}
		defer e.Close()

		limit := c.Int("limit")
		list, err := jobs.NewService(e.db).ListJobs(c.Context, jobs.ListJobsOptions{Limit: &limit})
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, j := range list {
			rows = append(rows, []string{
				strconv.Itoa(j.ID),
				j.Type,
				j.Status,
				j.CreatedAt.Local().Format(time.DateTime),
				summarize(j),
			})
		}
		fmt.Println(renderTable([]string{"ID", "Type", "Status", "Started", "Result"}, rows, []columnAlignment{alignRight}))
		return nil
	},
}

func summarize(j *models.Job) string {
	switch data := j.DataParsed.(type) {
	case *models.JobPassData:
		return fmt.Sprintf("%s: %d processed, %d failed, %d stale, %d imported",
			data.Trigger, data.Processed, data.Failed, data.Stale, data.Imported)
	case *models.JobSweepData:
		return fmt.Sprintf("%d stale", data.Stale)
	}
	return ""
}
