package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"github.com/hed1ad/custguard/pkg/anomaly"
	cgio "github.com/hed1ad/custguard/pkg/io"
	"github.com/hed1ad/custguard/pkg/io/csv"
	"github.com/hed1ad/custguard/pkg/io/database"
	"github.com/hed1ad/custguard/pkg/io/report"
	"github.com/hed1ad/custguard/pkg/metrics"
	"github.com/hed1ad/custguard/pkg/models"
	"github.com/hed1ad/custguard/pkg/profile"
)

// run carries the state shared by the stages of one command.
type run struct {
	opts    Options
	now     time.Time
	txs     []models.Transaction
	report  *cgio.Report
	metrics *metrics.Metrics

	profiles *anomaly.ProfileResult
	behavior *anomaly.BehavioralResult
}

type stage struct {
	name string
	fn   func(*run) error
}

var (
	stageProfile      = stage{name: "profile", fn: (*run).detectProfiles}
	stageBehavioral   = stage{name: "behavioral", fn: (*run).detectBehavior}
	stageTransactions = stage{name: "transactions", fn: (*run).detectTransactions}
	stageSummary      = stage{name: "summary", fn: (*run).summarize}
)

func execute(ctx context.Context, command string, stages ...stage) error {
	now, err := opts.reference()
	if err != nil {
		return err
	}
	r := &run{
		opts:    opts,
		now:     now,
		report:  report.New(command),
		metrics: metrics.New(),
	}
	r.report.Metadata = map[string]any{"version": buildVersion}

	src, err := openSource(opts)
	if err != nil {
		return err
	}
	defer src.Close()

	r.txs, err = src.Read(ctx)
	if err != nil {
		return errors.Wrap(err, "loading transactions")
	}
	r.metrics.TransactionsLoaded(len(r.txs))
	log.WithFields(log.Fields{"run_id": r.report.RunID, "transactions": len(r.txs)}).Info("transactions loaded")

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.Default(int64(len(stages)), command)
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bar != nil {
			bar.Describe(s.name)
		}
		if err := s.fn(r); err != nil {
			r.metrics.Failed(s.name)
			return errors.Wrapf(err, "%s detection", s.name)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if err := r.write(); err != nil {
		return err
	}
	if opts.MetricsFile != "" {
		return r.metrics.WriteToTextfile(opts.MetricsFile)
	}
	return nil
}

func openSource(o Options) (cgio.Source, error) {
	if o.Input != "" {
		reader, err := csv.NewReader(o.Input)
		if err != nil {
			return nil, err
		}
		return reader, nil
	}
	db, err := database.Open(o.DSN)
	if err != nil {
		return nil, err
	}
	loader, err := database.NewLoader(db, database.WithTable(o.Table))
	if err != nil {
		db.Close()
		return nil, err
	}
	return loader, nil
}

func (r *run) detectProfiles() error {
	method, err := r.opts.profileMethod()
	if err != nil {
		return err
	}

	start := time.Now()
	profiles := profile.Build(r.txs, r.now)
	res, err := anomaly.NewProfileDetector().Run(profiles, method)
	if err != nil {
		return err
	}
	r.metrics.Observe(method.Name(), len(res.Rows), res.Count(), time.Since(start))
	r.profiles = res

	reasons := anomaly.NewExplainer(anomaly.WithTopFeatures(r.opts.Reasons)).Explain(res)

	var groups *anomaly.ClusterResult
	if r.opts.Groups > 0 {
		groups, err = anomaly.NewClusterer().Group(res.Anomalous(), r.opts.Groups)
		if err != nil {
			return err
		}
		if groups.Insufficient != nil {
			log.Info(groups.Insufficient.String())
		}
	}

	r.report.Profile = cgio.NewProfileSection(res, reasons, groups)
	log.WithFields(log.Fields{"method": method.Name(), "customers": len(res.Rows), "anomalies": res.Count()}).Info("profile detection done")
	return nil
}

func (r *run) detectBehavior() error {
	bopts := []anomaly.BehavioralOption{anomaly.WithSensitivity(r.opts.Sensitivity)}
	if !r.now.IsZero() {
		bopts = append(bopts, anomaly.WithNow(r.now))
	}

	start := time.Now()
	res, err := anomaly.NewBehavioralDetector(bopts...).Detect(r.txs)
	if err != nil {
		return err
	}
	r.metrics.Observe("behavioral", res.Evaluated, len(res.Events), time.Since(start))
	r.behavior = res

	if s := res.Shortfall(); s != nil {
		log.Info(s.String())
	}
	r.report.Behavioral = cgio.NewBehavioralSection(res)
	log.WithFields(log.Fields{"evaluated": res.Evaluated, "anomalies": len(res.Events)}).Info("behavioral detection done")
	return nil
}

func (r *run) detectTransactions() error {
	start := time.Now()
	res, err := anomaly.NewTransactionDetector(anomaly.WithTransactionContamination(r.opts.TxContamination)).Detect(r.txs)
	if err != nil {
		return err
	}
	section := cgio.NewTransactionSection(res)
	r.metrics.Observe("transactions", len(res.Rows), len(section.Anomalous), time.Since(start))

	r.report.Transactions = section
	log.WithFields(log.Fields{"transactions": len(res.Rows), "anomalies": len(section.Anomalous)}).Info("transaction detection done")
	return nil
}

func (r *run) summarize() error {
	s := anomaly.Summarize(r.profiles, r.behavior, nil)
	r.report.Summary = &s
	return nil
}

func (r *run) write() error {
	w, err := report.NewFileWriter(r.opts.Output, report.WithFormat(r.opts.Format))
	if err != nil {
		return err
	}
	if err := w.Write(r.report); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
