package main

import (
	"time"

	"github.com/pkg/errors"

	"github.com/hed1ad/custguard/pkg/anomaly"
	"github.com/hed1ad/custguard/pkg/io/database"
	"github.com/hed1ad/custguard/pkg/io/report"
)

// Options holds every command line and config file setting.
type Options struct {
	Input       string
	DSN         string
	Table       string
	Format      string
	Output      string
	MetricsFile string
	Progress    bool

	Method        string
	Contamination float64
	Eps           float64
	MinSamples    int
	Groups        int
	Reasons       int

	Sensitivity float64
	Now         string

	TxContamination float64
}

func defaultOptions() Options {
	forest := anomaly.DefaultIsolationForest()
	dbscan := anomaly.DefaultDBSCAN()
	return Options{
		Table:           database.DefaultTable,
		Format:          report.FormatJSON,
		Progress:        true,
		Method:          "iforest",
		Contamination:   forest.Contamination,
		Eps:             dbscan.Eps,
		MinSamples:      dbscan.MinSamples,
		Groups:          3,
		Reasons:         1,
		Sensitivity:     2.5,
		TxContamination: 0.01,
	}
}

func (o *Options) validate() error {
	if o.Input == "" && o.DSN == "" {
		return errors.New("one of --input or --dsn is required")
	}
	if o.Input != "" && o.DSN != "" {
		return errors.New("--input and --dsn are mutually exclusive")
	}
	if o.Format != report.FormatJSON && o.Format != report.FormatYAML {
		return errors.Errorf("unsupported --format %q", o.Format)
	}
	if _, err := o.profileMethod(); err != nil {
		return err
	}
	if o.Groups < 0 {
		return errors.Errorf("--groups must not be negative, got %d", o.Groups)
	}
	_, err := o.reference()
	return err
}

func (o *Options) profileMethod() (anomaly.ProfileMethod, error) {
	switch o.Method {
	case "iforest", "isolation_forest":
		m := anomaly.DefaultIsolationForest()
		m.Contamination = o.Contamination
		return m, nil
	case "dbscan":
		return anomaly.DBSCANMethod{Eps: o.Eps, MinSamples: o.MinSamples}, nil
	}
	return nil, errors.Errorf("unknown --method %q: use iforest or dbscan", o.Method)
}

// reference parses --now. The zero time means the latest transaction.
func (o *Options) reference() (time.Time, error) {
	if o.Now == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, o.Now, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid --now %q: use YYYY-MM-DD or RFC3339", o.Now)
}
